package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// State 条目在流水线中的状态
type State int

const (
	StateIdle       State = iota // 已知但未准入（文本为空或被跳过后释放）
	StateQueued                  // 在队列中
	StateDispatched              // 正在翻译
	StateDone                    // 成功或跳过
	StateFailed                  // 重试耗尽
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateDispatched:
		return "dispatched"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Admitted 是否占用准入名额（排队或翻译中）
func (s State) Admitted() bool {
	return s == StateQueued || s == StateDispatched
}

type entry struct {
	id            ItemID
	state         State
	lastKnownText string
	req           *Request // 排队或翻译中的请求
	parked        *Request // 翻译中观察到的变更，完成后再入队
}

// Ledger 条目状态的唯一来源；队列只是 Queued 条目的有序索引。
// 只由调度协程访问。
type Ledger struct {
	entries    map[ItemID]*entry
	order      []ItemID // 发现顺序
	queue      *Queue
	generation uint64
	now        func() time.Time
}

// NewLedger 创建空账本
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[ItemID]*entry),
		queue:   NewQueue(),
		now:     time.Now,
	}
}

// Track 登记条目（已存在时不变），返回是否为新条目
func (l *Ledger) Track(id ItemID) bool {
	if _, ok := l.entries[id]; ok {
		return false
	}
	l.entries[id] = &entry{id: id}
	l.order = append(l.order, id)
	return true
}

// Known 条目是否已登记
func (l *Ledger) Known(id ItemID) bool {
	_, ok := l.entries[id]
	return ok
}

// State 条目状态，未登记时为 StateIdle
func (l *Ledger) State(id ItemID) State {
	if e, ok := l.entries[id]; ok {
		return e.state
	}
	return StateIdle
}

// LastKnownText 最近一次观察到的文本
func (l *Ledger) LastKnownText(id ItemID) string {
	if e, ok := l.entries[id]; ok {
		return e.lastKnownText
	}
	return ""
}

// SetLastKnownText 更新最近一次观察到的文本
func (l *Ledger) SetLastKnownText(id ItemID, text string) {
	l.Track(id)
	l.entries[id].lastKnownText = text
}

// IDs 按发现顺序返回所有条目
func (l *Ledger) IDs() []ItemID {
	out := make([]ItemID, len(l.order))
	copy(out, l.order)
	return out
}

// Generation 当前代数
func (l *Ledger) Generation() uint64 {
	return l.generation
}

// NextGeneration 使所有翻译中的请求作废
func (l *Ledger) NextGeneration() {
	l.generation++
}

// QueueLen 排队请求数
func (l *Ledger) QueueLen() int {
	return l.queue.Len()
}

// Queue 队列索引，只读使用
func (l *Ledger) Queue() *Queue {
	return l.queue
}

func (l *Ledger) newRequest(id ItemID, text string) *Request {
	return &Request{
		ID:         uuid.NewString(),
		Item:       id,
		Text:       text,
		EnqueuedAt: l.now(),
		generation: l.generation,
	}
}

// TryAdmit 准入条目：已在排队或翻译中时返回 false 且不做任何改变
func (l *Ledger) TryAdmit(id ItemID, text string, prio Priority) bool {
	return l.admit(l.newRequest(id, text), prio)
}

// Readmit 准入 Release 返回的暂存请求，作为变更请求优先出队
func (l *Ledger) Readmit(req *Request) bool {
	req.generation = l.generation
	req.EnqueuedAt = l.now()
	return l.admit(req, PriorityFront)
}

func (l *Ledger) admit(req *Request, prio Priority) bool {
	l.Track(req.Item)
	e := l.entries[req.Item]
	if e.state.Admitted() {
		return false
	}

	e.req = req
	e.state = StateQueued
	e.parked = nil
	l.queue.Enqueue(req, prio)
	return true
}

// Supersede 用新文本取代条目的请求：
// 排队中则原地替换文本、重置重试次数，排到其余请求之前；
// 翻译中则暂存，待当前请求结束后优先入队；
// 否则作为新请求优先准入。
func (l *Ledger) Supersede(id ItemID, text string) {
	l.Track(id)
	e := l.entries[id]

	switch e.state {
	case StateQueued:
		l.queue.Remove(id)
		e.req.Text = text
		e.req.RetryCount = 0
		e.req.EnqueuedAt = l.now()
		e.req.generation = l.generation
		l.queue.Enqueue(e.req, PriorityFront)
	case StateDispatched:
		e.parked = l.newRequest(id, text)
	default:
		l.TryAdmit(id, text, PriorityFront)
	}
}

// Superseded 翻译中的请求是否已被取代或作废
func (l *Ledger) Superseded(req *Request) bool {
	e, ok := l.entries[req.Item]
	if !ok || e.req != req {
		return true
	}
	return e.parked != nil || req.generation != l.generation
}

// Dispatch 按距离重排后取出最多 n 个请求并标记为翻译中
func (l *Ledger) Dispatch(n int, distance func(ItemID) float64) []*Request {
	if n <= 0 || l.queue.Len() == 0 {
		return nil
	}
	l.queue.ReorderByProximity(distance)
	batch := l.queue.DrainBatch(n)
	for _, req := range batch {
		l.entries[req.Item].state = StateDispatched
	}
	return batch
}

// Requeue 失败的请求重试次数加一后回到队尾
func (l *Ledger) Requeue(req *Request) {
	e := l.entries[req.Item]
	req.RetryCount++
	e.state = StateQueued
	l.queue.Enqueue(req, PriorityNormal)
}

// Release 释放条目的准入名额并记录终态；返回翻译中暂存的变更（若有）
func (l *Ledger) Release(id ItemID, final State) *Request {
	e, ok := l.entries[id]
	if !ok {
		return nil
	}
	if e.state == StateQueued {
		l.queue.Remove(id)
	}
	parked := e.parked
	e.state = final
	e.req = nil
	e.parked = nil
	return parked
}

// ResetForRefresh 作废所有翻译中的请求，返回需要重新准入的条目：
// 排队中的留在队列里并重置重试次数，翻译中的暂存一个新请求待完成后入队，
// 其余有文本的条目返回给调用方准入。
func (l *Ledger) ResetForRefresh() []ItemID {
	l.NextGeneration()

	var admit []ItemID
	for _, id := range l.order {
		e := l.entries[id]
		if e.lastKnownText == "" {
			continue
		}
		switch e.state {
		case StateQueued:
			e.req.RetryCount = 0
			e.req.generation = l.generation
		case StateDispatched:
			e.parked = l.newRequest(id, e.lastKnownText)
		default:
			admit = append(admit, id)
		}
	}
	return admit
}
