// Package envconfig builds origin configurations from environment variables.
//
// For prefix GS and origin admin it reads GS_ADMIN_JWT_SECRET,
// GS_ADMIN_JWT_ALGORITHM, GS_ADMIN_JWT_PRIVATE_KEY (or _FILE),
// GS_ADMIN_JWT_PUBLIC_KEY (or _FILE), GS_ADMIN_JWT_ISSUER, GS_ADMIN_JWT_AUDIENCE,
// GS_ADMIN_JWT_SUBJECT, GS_ADMIN_JWT_KEY_ID, GS_ADMIN_JWT_LEEWAY and the five
// *_LIFESPAN values. Durations are Go duration strings or whole seconds.
// GS_ORIGINS lists origins when none are passed explicitly.
package envconfig
