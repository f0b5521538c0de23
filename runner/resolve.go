package runner

import (
	"github.com/agentloom/agentloom/agent"
	"github.com/agentloom/agentloom/core"
)

// findAgentToRun resolves which agent the session log points at. It is a pure
// function of the log, which is what makes paused conversations resumable
// across process restarts:
//
//  1. If the log holds a function call no later event has responded to, its
//     author continues unconditionally: the conversation is parked inside
//     that agent's tool loop and new input (typically the function response)
//     belongs to it.
//  2. Otherwise the most recent non-user author decides: the root's own name
//     selects the root; a known descendant selects itself when it is
//     transferable across the tree; unknown or non-transferable authors are
//     skipped and the scan continues backward.
//  3. An empty or exhausted log falls back to the root.
func (r *Runner) findAgentToRun(sess *core.Session) *agent.Node {
	events := sess.GetEvents()
	root := r.tree.Root()

	if author, ok := pendingFunctionCallAuthor(events); ok {
		if node, found := r.tree.Find(author); found {
			return node
		}
		r.logger.Warn("runner.resolve.unknown_pending_author", "author", author)
		return root
	}

	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Author == "" || ev.Author == core.UserAuthor {
			continue
		}
		if ev.Author == root.Name() {
			return root
		}
		node, ok := r.tree.Find(ev.Author)
		if !ok {
			r.logger.Warn("runner.resolve.unknown_author", "author", ev.Author)
			continue
		}
		if r.tree.Transferable(ev.Author) {
			return node
		}
	}
	return root
}

// pendingFunctionCallAuthor scans the log backward for the most recent
// function call without a matching response, tracking responded ids as it
// goes. Long-running calls park here until their response event (or a user
// message carrying the response) lands in the log.
func pendingFunctionCallAuthor(events []core.Event) (string, bool) {
	responded := map[string]bool{}
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		for _, fr := range ev.GetFunctionResponses() {
			if fr.ID != "" {
				responded[fr.ID] = true
			}
		}
		for _, fc := range ev.GetFunctionCalls() {
			if fc.ID != "" && !responded[fc.ID] {
				return ev.Author, true
			}
		}
	}
	return "", false
}
