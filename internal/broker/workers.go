package broker

// WorkerSummary is a point-in-time view of one connected worker, the
// shape the TEXT "workers" admin command reports.
type WorkerSummary struct {
	ID        string
	ClientID  string
	Abilities []string
}

// Workers returns a summary of every worker currently declared capable
// of at least one function, deduplicated by session identity.
func (b *Broker) Workers() []WorkerSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[*WorkerSession]bool)
	var out []WorkerSummary
	for _, name := range b.sortedFunctionNamesLocked() {
		for _, ws := range b.functions[name].workers.Values() {
			if seen[ws] {
				continue
			}
			seen[ws] = true
			out = append(out, WorkerSummary{ID: ws.ID, ClientID: ws.ClientID, Abilities: ws.Abilities()})
		}
	}
	return out
}
