package input

import "os"

// preCheckCache 检查缓存目录是否可用
// 参数：cacheDir-缓存目录，为空表示不使用缓存
// 返回：缓存目录存在且为文件夹时返回true
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("disable input cache")
		return false
	}
	if stat, err := os.Stat(cacheDir); err == nil && stat.IsDir() {
		log.Infof("enable input cache at %s", cacheDir)
		return true
	}
	log.Errorf("disable input cache because invalid dir %s (not exist or file)", cacheDir)
	return false
}
