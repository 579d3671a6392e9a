package sanitizer

func ClampPriority(priority, minPriority, maxPriority int) int {
	if priority < minPriority {
		return minPriority
	}
	if priority > maxPriority {
		return maxPriority
	}
	return priority
}
