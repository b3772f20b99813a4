package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"planimport/internal/importer"
	"planimport/internal/parser"
	"planimport/internal/reconcile"
)

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `toml:"server"`
	Data      DataConfig      `toml:"data"`
	Import    ImportConfig    `toml:"import"`
	Reconcile ReconcileConfig `toml:"reconcile"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    int  `toml:"port"`
	DevMode bool `toml:"dev_mode"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// ImportConfig 导入解析参数
type ImportConfig struct {
	MatchThreshold  float64 `toml:"match_threshold"`
	DateSerialFloor float64 `toml:"date_serial_floor"`
	SalaryOverhead  float64 `toml:"salary_overhead"`
	Workers         int     `toml:"workers"`
}

// ReconcileConfig 对账参数
type ReconcileConfig struct {
	Epsilon float64 `toml:"epsilon"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	PortSpecified bool
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    20262,
			DevMode: false,
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Import: ImportConfig{
			MatchThreshold:  parser.DefaultMatchThreshold,
			DateSerialFloor: parser.DefaultDateSerialFloor,
			SalaryOverhead:  parser.DefaultSalaryOverhead,
		},
		Reconcile: ReconcileConfig{
			Epsilon: reconcile.DefaultEpsilon,
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverMap, ok := raw["server"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// LoadConfigWithInfo 从可执行文件同目录的 config.toml 加载配置并返回元信息
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return LoadFile(filepath.Join(exeDir, "config.toml"))
}

// LoadFile 加载指定路径的配置；文件不存在时使用默认值，随后应用环境变量覆盖
func LoadFile(path string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{Path: path}
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, info, err
	}

	// 环境变量覆盖（用于容器 / 本地运行）
	if v := os.Getenv("PLANIMPORT_DATA_DIR"); v != "" {
		config.Data.DataDir = v
	}
	if v := os.Getenv("PLANIMPORT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, info, fmt.Errorf("invalid PLANIMPORT_PORT %q: %w", v, err)
		}
		config.Server.Port = port
		info.PortSpecified = true
	}

	return config, info, nil
}

// LoadConfig 从 config.toml 加载配置
func LoadConfig() (*AppConfig, error) {
	config, _, err := LoadConfigWithInfo()
	return config, err
}

// SaveConfig 保存配置到 config.toml
func SaveConfig(config *AppConfig, path string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ImportOptions 转换为导入协调器参数
func (c *AppConfig) ImportOptions() importer.Options {
	opts := importer.DefaultOptions()
	if c.Import.MatchThreshold > 0 {
		opts.MatchThreshold = c.Import.MatchThreshold
	}
	if c.Import.DateSerialFloor > 0 {
		opts.Header.DateSerialFloor = c.Import.DateSerialFloor
	}
	if c.Import.SalaryOverhead > 0 {
		opts.SalaryOverhead = c.Import.SalaryOverhead
	}
	opts.Workers = c.Import.Workers
	return opts
}

// EnsureDataDir 确保数据目录及子目录存在
// 相对路径以可执行文件所在目录为基准
func EnsureDataDir(config *AppConfig) (string, error) {
	dataDir := config.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		exeDir, err := GetExeDir()
		if err != nil {
			exeDir = "."
		}
		dataDir = filepath.Join(exeDir, dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	for _, subdir := range []string{"uploads", "exports"} {
		if err := os.MkdirAll(filepath.Join(dataDir, subdir), 0755); err != nil {
			return "", err
		}
	}

	return dataDir, nil
}
