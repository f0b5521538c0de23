package agent

// buildBranchPath joins a parent branch and a new suffix with the dotted
// lineage separator. An empty parent yields just the suffix.
func buildBranchPath(parent, suffix string) string {
	if parent == "" {
		return suffix
	}
	return parent + "." + suffix
}
