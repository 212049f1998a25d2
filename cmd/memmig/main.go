package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/memmig/internal/app/run"
	"github.com/John-Robertt/memmig/internal/catalog"
	"github.com/John-Robertt/memmig/internal/config"
	"github.com/John-Robertt/memmig/internal/domain"
	"github.com/John-Robertt/memmig/internal/infra/logx"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 让 RunE 把退出码带回 execute（cobra 自身的错误一律按用法错误处理）。
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "memmig",
		Short:         "把导出的回忆（照片/视频）下载到本地目录，并写回拍摄时间与位置",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newRunCmd(stdout, stderr))
	return root
}

type runFlags struct {
	config     string
	out        string
	from       string
	to         string
	overlay    bool
	resumeFrom string
	dryRun     bool
	verbose    bool
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [catalog]",
		Short: "按导出目录下载全部媒体（已存在的文件只补写元数据）",
		Long: `读取 memories_history.json（或 .html），逐条下载到输出目录。

已下载过的文件会被识别并跳过下载，只重新写入元数据；中断后直接重跑即可。
stdout 不是终端时，stdout 只输出一个 JSON 运行报告，摘要与日志走 stderr。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, f, stdout, stderr)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（默认查找 ./memmig.{json,yaml,yml,toml}）")
	fl.StringVarP(&f.out, "out", "o", "", "输出目录（默认 ./memories）")
	fl.StringVar(&f.from, "from", "", "只处理不早于该时间的记录（YYYY-MM-DD 或具体时间）")
	fl.StringVar(&f.to, "to", "", "只处理不晚于该时间的记录（YYYY-MM-DD 表示包含当天）")
	fl.BoolVar(&f.overlay, "overlay", false, "把压缩包里的叠加层合成到照片上")
	fl.StringVar(&f.resumeFrom, "resume-from", "", "从文件名包含该文本的记录开始处理")
	fl.BoolVar(&f.dryRun, "dry-run", false, "只规划文件名，不联网、不写盘")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "输出调试日志")
	return cmd
}

func runRun(cmd *cobra.Command, args []string, f *runFlags, stdout, stderr io.Writer) error {
	logx.SetOutput(stderr)
	logx.SetVerbose(f.verbose)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return &exitError{code: 1}
	}

	cli := config.CLIArgs{
		ConfigPath: f.config,
		Output:     f.out,
		From:       f.from,
		To:         f.to,
		Overlay:    f.overlay,
		OverlaySet: cmd.Flags().Changed("overlay"),
		ResumeFrom: f.resumeFrom,
		DryRun:     f.dryRun,
	}
	if len(args) > 0 {
		cli.Catalog = args[0]
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(stdout, stderr, reportForError(cli.Catalog, f.dryRun, config.Code(err), err.Error()))
		return &exitError{code: 1}
	}

	cat, err := catalog.Load(eff.Catalog)
	if err != nil {
		emitReport(stdout, stderr, reportForError(eff.Catalog, eff.DryRun, domain.ErrCodeCatalogInvalid, err.Error()))
		return &exitError{code: 1}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var obs run.Observer
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Close()
		obs = ui
	}

	rr := run.ExecuteWithObserver(ctx, eff, cat, obs)

	emitReport(stdout, stderr, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if hasFailures(rr.Items) {
		return &exitError{code: 1}
	}
	return nil
}

// hasFailures 按条目判断：已存在文件补写元数据失败也算失败。
func hasFailures(items []domain.ItemResult) bool {
	for _, it := range items {
		if it.Failed() {
			return true
		}
	}
	return false
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if isTTY(stdout) {
		writeSummary(stdout, rr.Summary)
		if hasFailures(rr.Items) {
			writeFailures(stderr, rr.Items)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr.Summary))
}

func reportForError(catalogPath string, dryRun bool, code, msg string) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Catalog:    catalogPath,
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  msg,
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if !eff.DryRun {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Output, run.ReportDir, run.ReportName))
	}
	fmt.Fprintf(w, "out: %s\n", eff.Output)
}
