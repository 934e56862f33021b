package discovery

// Frontier is the FIFO queue of discovered URLs together with the set of
// visited URLs. A URL enters the queue at most once over the life of the
// frontier. It is owned by a single scan and is not safe for concurrent use.
type Frontier struct {
	queue   []string
	queued  map[string]struct{}
	visited map[string]struct{}
}

// NewFrontier returns a frontier seeded with the given URLs.
func NewFrontier(seeds ...string) *Frontier {
	f := &Frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
	for _, s := range seeds {
		f.Push(s)
	}
	return f
}

// Push enqueues u unless it was already queued or visited.
func (f *Frontier) Push(u string) bool {
	if f.Seen(u) {
		return false
	}
	f.queued[u] = struct{}{}
	f.queue = append(f.queue, u)
	return true
}

// Pop removes the oldest entry.
func (f *Frontier) Pop() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	u := f.queue[0]
	f.queue[0] = ""
	f.queue = f.queue[1:]
	return u, true
}

// Len is the number of URLs waiting in the queue.
func (f *Frontier) Len() int { return len(f.queue) }

// Seen reports whether u was ever queued or visited.
func (f *Frontier) Seen(u string) bool {
	if _, ok := f.queued[u]; ok {
		return true
	}
	_, ok := f.visited[u]
	return ok
}

// Visited reports whether u was marked visited.
func (f *Frontier) Visited(u string) bool {
	_, ok := f.visited[u]
	return ok
}

// MarkVisited records u as visited.
func (f *Frontier) MarkVisited(u string) {
	f.visited[u] = struct{}{}
}

// VisitedCount is the number of distinct visited URLs.
func (f *Frontier) VisitedCount() int { return len(f.visited) }
