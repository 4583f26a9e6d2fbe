// 泛型容器
package container

import "container/heap"

// entry 优先队列中的一个元素
type entry[T any] struct {
	value    T
	priority float64 // 越小越优先
}

// entries 实现heap.Interface的最小堆
type entries[T any] []entry[T]

func (h entries[T]) Len() int           { return len(h) }
func (h entries[T]) Less(i, j int) bool { return h[i].priority < h[j].priority }
func (h entries[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entries[T]) Push(x any)        { *h = append(*h, x.(entry[T])) }
func (h *entries[T]) Pop() any {
	old := *h
	e := old[len(old)-1]
	*h = old[:len(old)-1]
	return e
}

// PriorityQueue 优先队列
// 功能：按优先级数值从小到大弹出元素
// 说明：Push只追加元素，批量追加后需调用Heapify；HeapPush/HeapPop始终维护堆性质
type PriorityQueue[T any] struct {
	h entries[T]
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{h: make(entries[T], 0)}
}

// Len 当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.h)
}

// First 优先级数值最小的元素（不弹出）
func (q *PriorityQueue[T]) First() T {
	return q.h[0].value
}

// Push 追加元素，不维护堆结构
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.h = append(q.h, entry[T]{value: value, priority: priority})
}

// Heapify 重新构建堆
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.h)
}

// HeapPush 加入元素并维护堆结构
func (q *PriorityQueue[T]) HeapPush(value T, priority float64) {
	heap.Push(&q.h, entry[T]{value: value, priority: priority})
}

// HeapPop 弹出优先级数值最小的元素
func (q *PriorityQueue[T]) HeapPop() (value T, priority float64) {
	e := heap.Pop(&q.h).(entry[T])
	return e.value, e.priority
}
