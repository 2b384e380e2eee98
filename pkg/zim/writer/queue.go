package writer

// maxQueueSize bounds the number of closed-but-not-yet-serialized clusters
// in flight, providing backpressure against the item producer outrunning
// the compression workers.
const maxQueueSize = 10

// taskQueue is a bounded MPMC queue of cluster builders awaiting
// compression, implemented as a buffered channel: the idiomatic Go
// equivalent of the original's mutex-guarded std::queue with a busy-wait
// push.
type taskQueue chan *ClusterBuilder

func newTaskQueue() taskQueue { return make(taskQueue, maxQueueSize) }

// toWriteQueue is the FIFO of builders in hand-off order; the writer
// goroutine drains it strictly in order so cluster file offsets come out
// monotonic regardless of which worker finishes compressing first.
type toWriteQueue chan *ClusterBuilder

func newToWriteQueue() toWriteQueue { return make(toWriteQueue, maxQueueSize*4) }
