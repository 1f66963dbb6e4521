package models

// SyncModeKey is the app_settings key holding the JSON encoded SyncMode.
const SyncModeKey = "syncMode"

// ProcessConfigKey is the app_settings key holding the JSON encoded ProcessRuleConfig.
const ProcessConfigKey = "processConfig"

// UpstreamConfigKey is the app_settings key holding the JSON encoded UpstreamConfig.
const UpstreamConfigKey = "upstreamConfig"
