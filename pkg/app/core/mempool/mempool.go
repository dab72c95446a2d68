package mempool

import (
	"container/heap"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Bucket is a mempool priority class
type Bucket int

const (
	BucketAdmin         Bucket = iota // owner config and credit ops
	BucketRemoveListing               // listing withdrawals
	BucketOther                       // addListing, buy, withdrawCurrency
)

func (b Bucket) String() string {
	switch b {
	case BucketAdmin:
		return "admin"
	case BucketRemoveListing:
		return "remove_listing"
	default:
		return "other"
	}
}

type envelope struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
	Nonce  string `json:"nonce"`
}

func parseEnvelope(b []byte) (envelope, bool) {
	var env envelope
	if len(b) == 0 || b[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return env, false
	}
	return env, true
}

func classify(txType string) Bucket {
	switch txType {
	case "setUnitPrice", "setCommissionRate", "setReserveCap", "setMaxListingPerAccount",
		"depositCurrency", "mintInventory":
		return BucketAdmin
	case "removeListing":
		return BucketRemoveListing
	default:
		return BucketOther
	}
}

// ClassifyRaw classifies a raw transaction by its JSON "type" field.
//
//	{"type": "setUnitPrice", ...}  -> BucketAdmin (any owner op)
//	{"type": "removeListing", ...} -> BucketRemoveListing
//
// Everything else, including malformed input, lands in BucketOther and is
// rejected when applied.
func ClassifyRaw(b []byte) Bucket {
	env, ok := parseEnvelope(b)
	if !ok {
		return BucketOther
	}
	return classify(env.Type)
}

type entry struct {
	raw    []byte
	bucket Bucket
	caller string
	nonce  uint64
	seq    uint64
	index  int // position in the ready heap, -1 if not a head
}

// readyHeap holds the next tx of every caller, ordered by bucket then arrival
type readyHeap []*entry

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].bucket != h[j].bucket {
		return h[i].bucket < h[j].bucket
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *readyHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *readyHeap) Pop() any {
	old := *h
	e := old[len(old)-1]
	old[len(old)-1] = nil
	e.index = -1
	*h = old[:len(old)-1]
	return e
}

// Mempool drains txs in bucket order admin -> removeListing -> other, FIFO
// within a bucket, except that one caller's txs always leave in nonce order.
// Only the lowest-nonce pending tx of each caller competes on priority.
type Mempool struct {
	mu      sync.Mutex
	callers map[string][]*entry // pending txs per caller, sorted by nonce
	ready   readyHeap
	counts  [3]int
	total   int
	seq     uint64
	maxLen  int
}

// NewMempool creates a mempool holding at most maxLen txs (0 = unbounded)
func NewMempool(maxLen int) *Mempool {
	return &Mempool{
		callers: make(map[string][]*entry),
		maxLen:  maxLen,
	}
}

// PushRaw classifies and enqueues a tx. Returns false if the pool is full.
func (m *Mempool) PushRaw(b []byte) bool {
	e := &entry{raw: append([]byte(nil), b...), bucket: BucketOther, index: -1}
	if env, ok := parseEnvelope(b); ok {
		e.bucket = classify(env.Type)
		e.caller = strings.ToLower(env.Caller)
		e.nonce, _ = strconv.ParseUint(env.Nonce, 10, 64)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxLen > 0 && m.total >= m.maxLen {
		return false
	}
	m.seq++
	e.seq = m.seq
	if e.caller == "" {
		// Unattributed txs are rejected when applied; queue them on their own
		e.caller = "#" + strconv.FormatUint(e.seq, 10)
	}

	q := m.callers[e.caller]
	i := sort.Search(len(q), func(i int) bool { return q[i].nonce > e.nonce })
	q = append(q, nil)
	copy(q[i+1:], q[i:])
	q[i] = e
	m.callers[e.caller] = q

	if i == 0 {
		if len(q) > 1 && q[1].index >= 0 {
			heap.Remove(&m.ready, q[1].index)
		}
		heap.Push(&m.ready, e)
	}
	m.counts[e.bucket]++
	m.total++
	return true
}

// SelectBatch returns up to maxBytes worth of txs (at least one if any are
// pending), removing selected txs from the mempool. maxBytes <= 0 takes
// everything.
func (m *Mempool) SelectBatch(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	for m.ready.Len() > 0 {
		e := m.ready[0]
		n := int64(len(e.raw))
		// The first tx is always taken so an oversized one cannot stall the pool.
		// Stopping here keeps lower buckets from overtaking a pending tx.
		if maxBytes > 0 && used+n > maxBytes && len(out) > 0 {
			break
		}
		heap.Pop(&m.ready)
		out = append(out, e.raw)
		used += n
		m.counts[e.bucket]--
		m.total--

		q := m.callers[e.caller][1:]
		if len(q) == 0 {
			delete(m.callers, e.caller)
			continue
		}
		m.callers[e.caller] = q
		heap.Push(&m.ready, q[0])
	}
	return out
}

// Len returns total pending txs
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// BucketLen returns pending txs in one bucket
func (m *Mempool) BucketLen(b Bucket) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[b]
}
