package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"

	"github.com/John-Robertt/memmig/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
)

const (
	// DefaultOutputDir 是未指定输出目录时使用的目录名（相对 cwd）。
	DefaultOutputDir = "memories"
	// EnvPrefix 是环境变量覆盖的统一前缀。
	EnvPrefix = "MEMMIG_"
)

// 无 --config 时按顺序在 cwd 下查找（都可选）。
var defaultConfigNames = []string{"memmig.json", "memmig.yaml", "memmig.yml", "memmig.toml"}

// CLIArgs 保留“是否显式指定”的信息：--overlay=false 必须能覆盖配置文件里的 true。
type CLIArgs struct {
	ConfigPath string

	Catalog string
	Output  string

	From string
	To   string

	Overlay    bool
	OverlaySet bool

	ResumeFrom string

	DryRun bool
}

// FileConfig 对应 memmig.{json,yaml,toml} 与 MEMMIG_* 环境变量。
type FileConfig struct {
	Catalog string `json:"catalog" yaml:"catalog" toml:"catalog" env:"MEMMIG_CATALOG"`
	Output  string `json:"output" yaml:"output" toml:"output" env:"MEMMIG_OUTPUT"`

	From string `json:"from" yaml:"from" toml:"from" env:"MEMMIG_FROM"`
	To   string `json:"to" yaml:"to" toml:"to" env:"MEMMIG_TO"`

	DownloadRetries  int  `json:"download_retries" yaml:"download_retries" toml:"download_retries" env:"MEMMIG_DOWNLOAD_RETRIES" env-default:"3" validate:"gte=1,lte=20"`
	MetadataRetries  int  `json:"metadata_retries" yaml:"metadata_retries" toml:"metadata_retries" env:"MEMMIG_METADATA_RETRIES" env-default:"3" validate:"gte=1,lte=20"`
	CompositeOverlay bool `json:"composite_overlay" yaml:"composite_overlay" toml:"composite_overlay" env:"MEMMIG_COMPOSITE_OVERLAY"`

	ResumeFrom string `json:"resume_from" yaml:"resume_from" toml:"resume_from" env:"MEMMIG_RESUME_FROM"`

	ProxyURL          string  `json:"proxy_url" yaml:"proxy_url" toml:"proxy_url" env:"MEMMIG_PROXY_URL" validate:"omitempty,url"`
	TimeoutSeconds    int     `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds" env:"MEMMIG_TIMEOUT_SECONDS" env-default:"90" validate:"gte=1,lte=3600"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second" env:"MEMMIG_REQUESTS_PER_SECOND" validate:"gte=0"`

	FFmpegPath       string `json:"ffmpeg_path" yaml:"ffmpeg_path" toml:"ffmpeg_path" env:"MEMMIG_FFMPEG_PATH" env-default:"ffmpeg"`
	MetadataTimezone string `json:"metadata_timezone" yaml:"metadata_timezone" toml:"metadata_timezone" env:"MEMMIG_METADATA_TIMEZONE" env-default:"UTC"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 为实际读取的配置文件；没有则为空。
	ConfigPath string

	Catalog string
	Output  string

	// From/To 保留原始输入，Range 为解析结果。
	From  string
	To    string
	Range domain.DateRange

	DownloadRetries  int
	MetadataRetries  int
	CompositeOverlay bool
	ResumeFrom       string

	ProxyURL          string
	Timeout           time.Duration
	RequestsPerSecond float64

	FFmpegPath string
	Location   *time.Location

	DryRun bool

	Caps Capabilities
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var validate = validator.New()

// LoadEffective 发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) <cwd>/.env 存在时先载入（不覆盖已有环境变量）
// 2) --config 指定：必须存在
// 3) 未指定：依次尝试 <cwd>/memmig.{json,yaml,yml,toml}，都没有则只读环境变量
//
// 覆盖优先级：CLI > 配置文件/环境变量 > 默认值。
// 相对路径：CLI 给出的相对 cwd；配置文件给出的相对配置文件所在目录。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if err := loadDotEnv(filepath.Join(cwdAbs, ".env")); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, ".env"), Err: err}
	}

	cfgPath, err := discover(cwdAbs, cli.ConfigPath)
	if err != nil {
		return EffectiveConfig{}, err
	}

	var fc FileConfig
	if cfgPath != "" {
		err = cleanenv.ReadConfig(cfgPath, &fc)
	} else {
		err = cleanenv.ReadEnv(&fc)
	}
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func discover(cwdAbs, explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		p, err := absFrom(cwdAbs, explicit)
		if err != nil {
			return "", &Error{Code: ErrCodeInvalid, Path: explicit, Err: err}
		}
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return "", &Error{Code: ErrCodeNotFound, Path: p, Err: os.ErrNotExist}
			}
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		return p, nil
	}
	for _, name := range defaultConfigNames {
		p := filepath.Join(cwdAbs, name)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	if err := validate.Struct(fc); err != nil {
		return invalid(describeValidation(err))
	}

	fileBase := cwdAbs
	if cfgPath != "" {
		fileBase = filepath.Dir(cfgPath)
	}

	// catalog：CLI > config；必填。
	catalog, err := pickPath(cwdAbs, cli.Catalog, fileBase, fc.Catalog)
	if err != nil {
		return invalid(err)
	}
	if catalog == "" {
		return invalid(errors.New("缺少导出目录文件（catalog）"))
	}

	// output：CLI > config > <cwd>/memories
	output, err := pickPath(cwdAbs, cli.Output, fileBase, fc.Output)
	if err != nil {
		return invalid(err)
	}
	if output == "" {
		output = filepath.Join(cwdAbs, DefaultOutputDir)
	}

	from := firstNonEmpty(cli.From, fc.From)
	to := firstNonEmpty(cli.To, fc.To)
	dr, err := domain.ParseDateRange(from, to)
	if err != nil {
		return invalid(err)
	}

	overlay := fc.CompositeOverlay
	if cli.OverlaySet {
		overlay = cli.Overlay
	}

	proxyURL := strings.TrimSpace(fc.ProxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Host == "" {
			return invalid(fmt.Errorf("proxy_url 无效：%q", proxyURL))
		}
	}

	tzName := strings.TrimSpace(fc.MetadataTimezone)
	if tzName == "" {
		tzName = "UTC"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return invalid(fmt.Errorf("metadata_timezone 无效：%q", tzName))
	}

	ffmpegPath := strings.TrimSpace(fc.FFmpegPath)
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.ContainsRune(ffmpegPath, os.PathSeparator) || strings.HasPrefix(ffmpegPath, "~") {
		if ffmpegPath, err = absFrom(fileBase, ffmpegPath); err != nil {
			return invalid(err)
		}
	}

	return EffectiveConfig{
		ConfigPath:        cfgPath,
		Catalog:           catalog,
		Output:            output,
		From:              from,
		To:                to,
		Range:             dr,
		DownloadRetries:   fc.DownloadRetries,
		MetadataRetries:   fc.MetadataRetries,
		CompositeOverlay:  overlay,
		ResumeFrom:        firstNonEmpty(cli.ResumeFrom, fc.ResumeFrom),
		ProxyURL:          proxyURL,
		Timeout:           time.Duration(fc.TimeoutSeconds) * time.Second,
		RequestsPerSecond: fc.RequestsPerSecond,
		FFmpegPath:        ffmpegPath,
		Location:          loc,
		DryRun:            cli.DryRun,
		Caps:              DetectCapabilities(ffmpegPath),
	}, nil
}

func describeValidation(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s 不满足 %s=%s（实际 %v）", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			parts = append(parts, fmt.Sprintf("%s 不满足 %s（实际 %v）", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(parts, "；"))
}

// pickPath：CLI 值优先（相对 cwd），否则用配置值（相对配置文件目录）。
func pickPath(cwdAbs, cliValue, fileBase, fileValue string) (string, error) {
	if strings.TrimSpace(cliValue) != "" {
		return absFrom(cwdAbs, cliValue)
	}
	if strings.TrimSpace(fileValue) != "" {
		return absFrom(fileBase, fileValue)
	}
	return "", nil
}

// absFrom 展开 ~ 后以 base 为基准变为 clean + absolute。
func absFrom(base, p string) (string, error) {
	p, err := homedir.Expand(strings.TrimSpace(p))
	if err != nil {
		return "", err
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p, nil
	}
	return filepath.Clean(filepath.Join(base, p)), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
