// Package balancer implements the pure queue/priority task scheduler
// grounded on original_source/task-balancer: it owns no I/O, only the
// ordering rule deciding which of a set of candidate nodes should receive
// a task.
package balancer

// Task is something that can be enqueued on a Node, restricted to the
// nodes it declares itself able to run on.
type Task interface {
	// CanRun reports whether this task may run on the node identified by id.
	CanRun(id string) bool
}

// Node is a schedulable target: something with a queue depth and a
// priority, able to accept a dispatched task.
type Node[T Task] interface {
	// SendTask dispatches task to this node.
	SendTask(task T)

	// QueueLength is this node's current backlog, ascending sort key.
	QueueLength() int

	// Priority is this node's tie-breaking rank; higher wins ties,
	// mirroring the Rust original's reversed Ord on priority.
	Priority() int

	// ID identifies this node to Task.CanRun.
	ID() string
}

// SortingPriority is the ordering key used to pick a node for a task: nodes
// are compared first by ascending QueueLength, then by descending
// Priority, matching task-balancer/src/node.rs's SortingPriority.
type SortingPriority struct {
	QueueLength int
	Priority    int
}

// Less reports whether s should be preferred over other.
func (s SortingPriority) Less(other SortingPriority) bool {
	if s.QueueLength != other.QueueLength {
		return s.QueueLength < other.QueueLength
	}
	return s.Priority > other.Priority
}

func sortingOf[T Task](n Node[T]) SortingPriority {
	return SortingPriority{QueueLength: n.QueueLength(), Priority: n.Priority()}
}

// Balancer holds the current set of candidate nodes and enqueues tasks onto
// the best-ranked eligible one.
type Balancer[T Task] struct {
	nodes []Node[T]
}

// New returns a Balancer over the given nodes.
func New[T Task](nodes []Node[T]) *Balancer[T] {
	return &Balancer[T]{nodes: nodes}
}

// SetNodes replaces the candidate node set, e.g. after a gossip-driven
// membership change.
func (b *Balancer[T]) SetNodes(nodes []Node[T]) {
	b.nodes = nodes
}

// Enqueue picks the eligible node (task.CanRun(node.ID()) == true) with the
// smallest SortingPriority, dispatches task to it and returns true. If no
// node is eligible, it returns false and task is not dispatched anywhere;
// nothing is queued, so the task stays with the caller. Ties between nodes
// with identical SortingPriority are broken arbitrarily by iteration order,
// same as the Rust original's min_by_key.
func (b *Balancer[T]) Enqueue(task T) (ok bool) {
	var best Node[T]
	var bestSort SortingPriority
	found := false

	for _, node := range b.nodes {
		if !task.CanRun(node.ID()) {
			continue
		}

		sort := sortingOf(node)
		if !found || sort.Less(bestSort) {
			best = node
			bestSort = sort
			found = true
		}
	}

	if !found {
		return false
	}

	best.SendTask(task)
	return true
}
