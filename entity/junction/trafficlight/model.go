package trafficlight

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// startKey 起始情形：状态+灯色
type startKey struct {
	State
	Green bool
}

// endKey 起始情形+下一状态
type endKey struct {
	startKey
	Next Cell
}

// obsKey 完整观测：起始情形+下一状态+排队长度
type obsKey struct {
	endKey
	Queue int32
}

// queueStartKey 按排队长度分层的起始情形
type queueStartKey struct {
	startKey
	Queue int32
}

// ObservationRecord 一条转移观测及其计数
type ObservationRecord struct {
	Signal      int32 `bson:"signal"`
	Position    int32 `bson:"pos"`
	Destination int32 `bson:"dest"`
	Green       bool  `bson:"green"`
	Queue       int32 `bson:"queue"`
	NextSignal  int32 `bson:"next_signal"`
	NextPos     int32 `bson:"next_pos"`
	Count       int64 `bson:"count"`
}

// TransitionModel 经验转移模型
// 功能：记录(状态, 灯色, 排队长度) -> 下一状态的出现次数，并由整数计数导出经验概率
// 说明：
// 1. 观测项在第一次出现时惰性创建，计数单调不减
// 2. 每次记录后重新扫描同一起始情形的全部观测，精确重算概率，结果与记录顺序无关
// 3. 所有查找均为哈希表查找
type TransitionModel struct {
	counts map[obsKey]int64
	ends   map[startKey][]obsKey // 起始情形 -> 出现过的观测键

	totalAny map[startKey]int64
	totalQ   map[queueStartKey]int64
	probAny  map[endKey]float64
	probQ    map[obsKey]float64
}

// NewTransitionModel 创建空的转移模型
func NewTransitionModel() *TransitionModel {
	m := &TransitionModel{}
	m.Reset()
	return m
}

// Reset 清空全部计数与概率
func (m *TransitionModel) Reset() {
	m.counts = make(map[obsKey]int64)
	m.ends = make(map[startKey][]obsKey)
	m.totalAny = make(map[startKey]int64)
	m.totalQ = make(map[queueStartKey]int64)
	m.probAny = make(map[endKey]float64)
	m.probQ = make(map[obsKey]float64)
}

// Record 记录一次转移
// 功能：对应观测计数加一（首次出现时创建），然后重算同一起始情形下的所有概率
// 参数：start-起始状态，green-起始时的灯色，queue-观测时的排队长度，next-下一状态
func (m *TransitionModel) Record(start State, green bool, queue int32, next Cell) {
	m.add(obsKey{endKey: endKey{startKey: startKey{State: start, Green: green}, Next: next}, Queue: queue}, 1)
	m.recompute(startKey{State: start, Green: green})
}

func (m *TransitionModel) add(k obsKey, n int64) {
	if _, ok := m.counts[k]; !ok {
		m.ends[k.startKey] = append(m.ends[k.startKey], k)
	}
	m.counts[k] += n
}

// recompute 由计数精确重算一个起始情形下的全部概率
// 算法说明：
// 1. 汇总该起始情形的总次数，以及按排队长度分层的总次数
// 2. 对每个下一状态，聚合概率 = 该下一状态各层次数之和 / 总次数
// 3. 分层概率 = 该观测次数 / 同层总次数
func (m *TransitionModel) recompute(sk startKey) {
	keys := m.ends[sk]
	var total int64
	perQueue := make(map[int32]int64)
	perEnd := make(map[endKey]int64)
	for _, k := range keys {
		c := m.counts[k]
		total += c
		perQueue[k.Queue] += c
		perEnd[k.endKey] += c
	}
	m.totalAny[sk] = total
	for q, c := range perQueue {
		m.totalQ[queueStartKey{startKey: sk, Queue: q}] = c
	}
	for ek, c := range perEnd {
		m.probAny[ek] = float64(c) / float64(total)
	}
	for _, k := range keys {
		m.probQ[k] = float64(m.counts[k]) / float64(perQueue[k.Queue])
	}
}

// Probability 经验转移概率
// 功能：返回P(next | start, green[, queue])
// 参数：queue为AnyQueue时按所有排队长度聚合，否则只使用该排队长度下的观测
// 返回：匹配次数/起始情形总次数；没有任何观测时严格返回0
func (m *TransitionModel) Probability(start State, green bool, next Cell, queue int32) float64 {
	ek := endKey{startKey: startKey{State: start, Green: green}, Next: next}
	if queue == AnyQueue {
		return m.probAny[ek]
	}
	return m.probQ[obsKey{endKey: ek, Queue: queue}]
}

// Count 观测次数（queue为AnyQueue时聚合所有排队长度）
func (m *TransitionModel) Count(start State, green bool, next Cell, queue int32) int64 {
	ek := endKey{startKey: startKey{State: start, Green: green}, Next: next}
	if queue != AnyQueue {
		return m.counts[obsKey{endKey: ek, Queue: queue}]
	}
	return lo.SumBy(m.ends[ek.startKey], func(k obsKey) int64 {
		if k.endKey != ek {
			return 0
		}
		return m.counts[k]
	})
}

// Total 起始情形的观测总次数（queue为AnyQueue时聚合所有排队长度）
func (m *TransitionModel) Total(start State, green bool, queue int32) int64 {
	sk := startKey{State: start, Green: green}
	if queue == AnyQueue {
		return m.totalAny[sk]
	}
	return m.totalQ[queueStartKey{startKey: sk, Queue: queue}]
}

// GreenRatio 状态处于绿灯/红灯的经验比例
// 返回：(pGreen, pRed)，该状态从未被观测时均为0
func (m *TransitionModel) GreenRatio(s State) (pGreen, pRed float64) {
	g := m.totalAny[startKey{State: s, Green: true}]
	r := m.totalAny[startKey{State: s, Green: false}]
	if g+r == 0 {
		return 0, 0
	}
	return float64(g) / float64(g+r), float64(r) / float64(g+r)
}

// Observations 导出全部观测（按键排序，输出稳定）
func (m *TransitionModel) Observations() []ObservationRecord {
	records := make([]ObservationRecord, 0, len(m.counts))
	for k, c := range m.counts {
		records = append(records, ObservationRecord{
			Signal:      k.Signal,
			Position:    k.Position,
			Destination: k.Destination,
			Green:       k.Green,
			Queue:       k.Queue,
			NextSignal:  k.Next.Signal,
			NextPos:     k.Next.Position,
			Count:       c,
		})
	}
	slices.SortFunc(records, func(a, b ObservationRecord) int {
		return cmp.Or(
			cmp.Compare(a.Signal, b.Signal),
			cmp.Compare(a.Position, b.Position),
			cmp.Compare(a.Destination, b.Destination),
			cmp.Compare(lo.Ternary(a.Green, 0, 1), lo.Ternary(b.Green, 0, 1)),
			cmp.Compare(a.Queue, b.Queue),
			cmp.Compare(a.NextSignal, b.NextSignal),
			cmp.Compare(a.NextPos, b.NextPos),
		)
	})
	return records
}

// restore 用导出的观测替换当前模型内容，概率由计数重新导出
func (m *TransitionModel) restore(records []ObservationRecord) {
	m.Reset()
	touched := make(map[startKey]struct{})
	for _, r := range records {
		sk := startKey{State: State{Signal: r.Signal, Position: r.Position, Destination: r.Destination}, Green: r.Green}
		m.add(obsKey{endKey: endKey{startKey: sk, Next: Cell{Signal: r.NextSignal, Position: r.NextPos}}, Queue: r.Queue}, r.Count)
		touched[sk] = struct{}{}
	}
	for sk := range touched {
		m.recompute(sk)
	}
}

// Len 不同观测的数量
func (m *TransitionModel) Len() int {
	return len(m.counts)
}
