package logger

// RedactPhone masks a phone number for safe logging.
// "+2348012345678" → "+23480*****678"
// Numbers too short to keep a meaningful prefix are fully masked.
func RedactPhone(phone string) string {
	if len(phone) < 8 {
		return "***"
	}
	return phone[:6] + "*****" + phone[len(phone)-3:]
}
