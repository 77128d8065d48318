package storage

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

func otherParty(msg *StoredMessage) string {
	if msg.IsOutgoing {
		return msg.ToAddress
	}
	return msg.FromAddress
}

func preview(text string) string {
	const max = 100
	r := []rune(text)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return text
}
