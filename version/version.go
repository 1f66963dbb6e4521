package version

// AppVersion is overridden at build time with -ldflags "-X modelmap/version.AppVersion=...".
var AppVersion = "0.1.0-dev"
