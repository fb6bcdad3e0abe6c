package quorum

// Vote returns the reply given by the most servers. A tie goes to the reply that was seen first, so callers control
// tie-breaks through the order of replies.
func Vote(replies []string) string {
	counts := make(map[string]int, len(replies))
	order := make([]string, 0, len(replies))
	for _, r := range replies {
		if counts[r] == 0 {
			order = append(order, r)
		}
		counts[r]++
	}
	winner, best := "", 0
	for _, r := range order {
		if counts[r] > best {
			winner, best = r, counts[r]
		}
	}
	return winner
}
