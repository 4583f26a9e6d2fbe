package trafficlight

import "math"

// Explore 抛一次本步的探索硬币，以RandomChance的概率返回true
// 说明：每步只抛一次，多个控制器共用同一结果
func (b *base) Explore() bool {
	return b.rng.PTrue(b.cfg.RandomChance)
}

// Decide 计算本步全部自有信号灯的收益
// 功能：gain = Σ 排队的道路使用者 乘客数·(Q(s,红) − Q(s,绿))
// 参数：explore-本步是否探索（见Explore）
// 算法说明：
// 1. 探索时所有信号灯的收益都替换为独立的[0,1)均匀随机数
// 2. 否则按排队车辆累加Q差值；超过告警阈值的收益输出warn日志
// 返回：按信号ID升序的收益列表
func (b *base) Decide(explore bool) ([]Decision, error) {
	out := make([]Decision, len(b.lights))
	for i, signal := range b.lights {
		out[i].Signal = signal
		if explore {
			out[i].Gain = b.rng.Float64()
			continue
		}
		gain, err := b.gain(signal)
		if err != nil {
			return nil, err
		}
		if math.Abs(gain) > b.gainWarn {
			log.Warnf("%s: gain %.3f of signal %d might be too high", b.name, gain, signal)
		}
		out[i].Gain = gain
	}
	return out, nil
}

func (b *base) gain(signal int32) (float64, error) {
	gain := 0.
	for _, ru := range b.network.Waiting(signal) {
		s := State{Signal: signal, Position: ru.Position, Destination: b.d.normalize(ru.Destination)}
		qRed, err := b.q.get(s, slotRed)
		if err != nil {
			return 0, err
		}
		qGreen, err := b.q.get(s, slotGreen)
		if err != nil {
			return 0, err
		}
		gain += ru.Passengers * (qRed - qGreen)
	}
	return gain, nil
}
