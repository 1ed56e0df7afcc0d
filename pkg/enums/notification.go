package enums

// NotificationType groups in-app notifications for filtering.
type NotificationType string

const (
	NotificationTypePayout        NotificationType = "payout"
	NotificationTypeAdjustment    NotificationType = "adjustment"
	NotificationTypeVoucher       NotificationType = "voucher"
	NotificationTypeRefundRequest NotificationType = "refund_request"
)

var notificationTypes = members(
	NotificationTypePayout,
	NotificationTypeAdjustment,
	NotificationTypeVoucher,
	NotificationTypeRefundRequest,
)

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return notificationTypes.parse("notification type", value)
}
