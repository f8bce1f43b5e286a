package turn

// Snapshot is a read-only projection of the Activity model, rebuilt on
// demand and handed to the presentation layer. It shares no mutable state
// with the model.
type Snapshot struct {
	Agents     []AgentView
	Thoughts   string
	Response   string
	ProcessLog []string
	Interrupt  *InterruptPayload
	Done       bool
}

// AgentView is one delegated agent as the presentation layer sees it.
type AgentView struct {
	ID        string
	Tools     []string
	Preview   string
	Finalized bool
	Active    bool
}

// Snapshot builds the current projection in display order.
func (a *Activity) Snapshot() Snapshot {
	snap := Snapshot{
		Thoughts: a.thoughts,
		Response: a.response,
		Done:     a.done,
	}
	if len(a.processLog) > 0 {
		snap.ProcessLog = append([]string(nil), a.processLog...)
	}
	if a.pending != nil {
		p := *a.pending
		snap.Interrupt = &p
	}
	for _, id := range a.order {
		st := a.agents[id]
		if st == nil {
			continue
		}
		snap.Agents = append(snap.Agents, AgentView{
			ID:        st.ID,
			Tools:     append([]string(nil), st.Tools...),
			Preview:   st.Preview(),
			Finalized: st.Finalized,
			Active:    st.ID == a.current,
		})
	}
	return snap
}
