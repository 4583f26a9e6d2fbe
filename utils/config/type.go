package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

func (p InputPath) GetDb() string {
	return p.DB
}

func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径，未指定时为{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Input 指定所有输入数据的配置项
type Input struct {
	URI    string    `yaml:"uri"`    // MongoDB连接字符串
	Map    InputPath `yaml:"map"`    // 地图
	Replay string    `yaml:"replay"` // 移动日志（yaml）文件路径
}

// ControlStep 指定模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数，0表示回放完整个移动日志
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// TLC 信控学习配置
// 说明：指针字段为空时使用控制器类型的默认值
type TLC struct {
	Variant         string   `yaml:"variant"`                   // 控制器类型：tc1/tc2/tc3
	Gamma           *float64 `yaml:"gamma,omitempty"`           // 折扣因子
	RandomChance    *float64 `yaml:"random_chance,omitempty"`   // 每步整体探索概率
	Destinationless *bool    `yaml:"destinationless,omitempty"` // 是否折叠目的地
	Seed            uint64   `yaml:"seed,omitempty"`            // 探索随机数种子
	Partition       string   `yaml:"partition,omitempty"`       // 控制器划分方式：network（默认）/junction
	TrackJunction   *int32   `yaml:"track_junction,omitempty"`  // 输出调试信息的路口
	PositionLength  float64  `yaml:"position_length,omitempty"` // 位置桶长度(m)，默认7.5
	Reach           int32    `yaml:"reach,omitempty"`           // 每步最多前进的位置桶数，默认2
}

// Output 学习结果的持久化配置
type Output struct {
	Dir  string `yaml:"dir,omitempty"`  // 本地快照目录（优先级高于MongoDB）
	URI  string `yaml:"uri,omitempty"`  // MongoDB连接字符串
	DB   string `yaml:"db,omitempty"`   // 数据库名
	Col  string `yaml:"col,omitempty"`  // 集合名
	Load bool   `yaml:"load,omitempty"` // 启动时加载快照（缺失视为错误）
	Save bool   `yaml:"save,omitempty"` // 结束时保存快照
}

// Control 控制配置
type Control struct {
	Step ControlStep `yaml:"step"`
	TLC  TLC         `yaml:"tlc"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`            // 输入
	Control Control `yaml:"control"`          // 模拟过程控制
	Output  *Output `yaml:"output,omitempty"` // 输出
}

func (o Output) GetDb() string {
	return o.DB
}

func (o Output) GetColl() string {
	return o.Col
}
