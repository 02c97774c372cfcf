package errs

import "strconv"

var (
	// Validation
	ErrMissingUserID     = Validation("sender and receiver ids are required")
	ErrSendToSelf        = Validation("cannot send a private message to yourself")
	ErrEmptyContent      = Validation("message content cannot be empty")
	ErrMalformedImage    = Validation("malformed image message")
	ErrConfigKeyReadonly = Validation("config key cannot be modified")

	// PermissionDenied
	ErrFeatureDisabled         = PermissionDenied("private messaging is temporarily disabled")
	ErrSystemDisallowsStranger = PermissionDenied("the system does not allow messages between strangers")
	ErrRecipientNoStrangers    = PermissionDenied("the recipient does not accept messages from strangers")
	ErrRecipientMutualOnly     = PermissionDenied("the recipient only accepts messages from mutual follows")
	ErrSenderBlockedReceiver   = PermissionDenied("you have blocked this user, unblock them to send messages")

	// RateLimited
	ErrTooFrequent = RateLimited("you are sending messages too frequently, please take a short break")
	ErrTooFast     = RateLimited("you are sending messages too fast, please wait a moment")

	// 频控存储不可用时拒绝发送
	ErrRateGateUnavailable = RateLimited("sending is temporarily limited, please try again later")

	// AccountState
	ErrSenderNotFound      = AccountState("sender account does not exist")
	ErrReceiverNotFound    = AccountState("recipient account does not exist")
	ErrSenderUnavailable   = AccountState("your account cannot send private messages right now")
	ErrReceiverUnavailable = AccountState("the recipient account cannot receive private messages")
)

func ErrContentTooLong(limit int) error {
	return Validation("message content is too long, at most " + strconv.Itoa(limit) + " characters")
}

func ErrInvalidConfigValue(key, reason string) error {
	return Validation("invalid value for " + key + ": " + reason)
}
