package audit

// Actions recorded by the credential and session flows.
const (
	ActionRegister            = "register"
	ActionConfirm             = "confirm"
	ActionResendConfirmation  = "confirmation_resend"
	ActionLogin               = "login"
	ActionLoginFailure        = "login_failure"
	ActionRefresh             = "refresh"
	ActionLogout              = "logout"
	ActionDeviceRevoke        = "device_revoke"
	ActionDevicesRevokeOthers = "devices_revoke_others"
	ActionPasswordRecovery    = "password_recovery"
	ActionPasswordReset       = "password_reset"
)

// Resources the actions apply to.
const (
	ResourceUser    = "user"
	ResourceSession = "session"
	ResourceDevice  = "device"
)
