package workflow

// LooksLikePersonnel is the legacy check for a scan that names a staff member
// instead of a label: the code matches a known personnel name exactly.
// Stations that enable it treat such a scan as "commit the pending list to this person".
func LooksLikePersonnel(code string, names []string) bool {
	if code == "" {
		return false
	}
	for _, name := range names {
		if name == code {
			return true
		}
	}
	return false
}
