package pipeline

import (
	"slices"
	"sort"
)

// Queue 排队中请求的有序索引。只由调度协程访问，不加锁。
type Queue struct {
	items []*Request
}

// NewQueue 创建空队列
func NewQueue() *Queue {
	return &Queue{}
}

// Len 队列长度
func (q *Queue) Len() int {
	return len(q.items)
}

// Priority 入队优先级，只对下一次出队排序生效
type Priority int

const (
	PriorityNormal Priority = iota
	// PriorityNear 发现时就在视口中心附近：距离相同时排在普通请求之前
	PriorityNear
	// PriorityFront 内容变更：排在按距离排序的请求之前，多个之间先到先出
	PriorityFront
)

// Enqueue 入队；PriorityFront 插在已有的变更请求之后、其余请求之前
func (q *Queue) Enqueue(req *Request, prio Priority) {
	req.priority = prio
	if prio != PriorityFront {
		q.items = append(q.items, req)
		return
	}
	i := 0
	for i < len(q.items) && q.items[i].priority == PriorityFront {
		i++
	}
	q.items = slices.Insert(q.items, i, req)
}

// Find 查找条目的排队请求
func (q *Queue) Find(item ItemID) *Request {
	for _, r := range q.items {
		if r.Item == item {
			return r
		}
	}
	return nil
}

// Remove 移除条目的排队请求
func (q *Queue) Remove(item ItemID) *Request {
	for i, r := range q.items {
		if r.Item == item {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return r
		}
	}
	return nil
}

// ReorderByProximity 按距离稳定升序排序；变更请求保持相对顺序排在最前，
// 距离相同时靠近中心发现的请求优先
func (q *Queue) ReorderByProximity(distance func(ItemID) float64) {
	dist := make(map[*Request]float64, len(q.items))
	for _, r := range q.items {
		if r.priority != PriorityFront {
			dist[r] = distance(r.Item)
		}
	}
	sort.SliceStable(q.items, func(i, j int) bool {
		a, b := q.items[i], q.items[j]
		if (a.priority == PriorityFront) != (b.priority == PriorityFront) {
			return a.priority == PriorityFront
		}
		if a.priority == PriorityFront {
			return false
		}
		if dist[a] != dist[b] {
			return dist[a] < dist[b]
		}
		return a.priority > b.priority
	})
}

// DrainBatch 取出队首最多 n 个请求；剩余请求的优先标记随之失效
func (q *Queue) DrainBatch(n int) []*Request {
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	n = min(n, len(q.items))

	batch := make([]*Request, n)
	copy(batch, q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)

	for _, r := range batch {
		r.priority = PriorityNormal
	}
	for _, r := range q.items {
		r.priority = PriorityNormal
	}
	return batch
}

// Items 返回队列副本，用于检查和测试
func (q *Queue) Items() []*Request {
	out := make([]*Request, len(q.items))
	copy(out, q.items)
	return out
}
