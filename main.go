package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"GrooveGauge/internal/analytics"
	"GrooveGauge/internal/appflow"
	"GrooveGauge/internal/camera"
	"GrooveGauge/internal/capture"
	"GrooveGauge/internal/classifier"
	"GrooveGauge/internal/classifierserver"
	"GrooveGauge/internal/config"
	"GrooveGauge/internal/credential"
	"GrooveGauge/internal/database"
	"GrooveGauge/internal/docstore"
	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/loadtest"
	"GrooveGauge/internal/logger"
	"GrooveGauge/internal/replay"
	"GrooveGauge/internal/report"
	"GrooveGauge/internal/sessionlog"
	"GrooveGauge/internal/wsclient"
)

const reportWidth = 72

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "groovegauge",
		Short:         "Crowd emotion tracking for live DJ sets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径（默认搜索 ./configs/groovegauge.yaml）")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别: debug, info, warning, error")

	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveClassifierCmd())
	rootCmd.AddCommand(benchClassifierCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志
func loadConfig(opts ...config.ConfigManagerOption) (*config.ConfigManager, *config.AppConfig, error) {
	cm := config.NewConfigManager(append([]config.ConfigManagerOption{config.WithConfigPath(configPath)}, opts...)...)
	cfg, err := cm.Load()
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.InitLogger(level)
	return cm, cfg, nil
}

// signalContext 收到 Ctrl-C 或 SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func credentialStore(cfg *config.AppConfig) *credential.FileStore {
	return credential.NewFileStore(cfg.Storage.CredentialsFile)
}

func newClassifier(cfg *config.AppConfig, store credential.Store) *classifier.Client {
	cc := classifier.DefaultConfig(cfg.Classifier.BaseURL)
	cc.Timeout = cfg.Classifier.Timeout
	cc.MaxRetries = cfg.Classifier.MaxRetries
	cc.RetryInterval = cfg.Classifier.RetryInterval

	return classifier.New(cc, classifier.WithTokenSource(credential.TokenSource{
		Store:  store,
		Server: credential.DefaultServer,
	}))
}

func newDevice(cfg *config.AppConfig) (capture.Device, string, error) {
	switch {
	case cfg.Camera.FramesDir != "":
		return camera.NewDirectoryCamera(cfg.Camera.FramesDir, cfg.PermissionPolicy()), cfg.Camera.FramesDir, nil
	case cfg.Camera.SnapshotURL != "":
		return camera.NewSnapshotCamera(cfg.Camera.SnapshotURL, cfg.Camera.SnapshotTimeout, cfg.PermissionPolicy()), cfg.Camera.SnapshotURL, nil
	default:
		return nil, "", errors.New("no camera source: set --frames-dir or --snapshot-url (or camera.frames_dir / camera.snapshot_url)")
	}
}

func newSharer(cfg *config.AppConfig) (docstore.Sharer, error) {
	if cfg.Storage.ShareCommand == "" {
		return docstore.LogSharer{}, nil
	}
	return docstore.NewCommandSharer(cfg.Storage.ShareCommand)
}

func connectArchive(ctx context.Context, cfg *config.AppConfig) (*database.Archive, error) {
	archive, err := database.Connect(ctx, &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, err
	}
	if err := archive.Migrate(ctx); err != nil {
		archive.Close()
		return nil, err
	}
	return archive, nil
}

func printReport(flow *appflow.Flow) {
	fmt.Println(report.Render(flow.Summary(), flow.Analyzer().Series(), reportWidth))
	if summary := flow.Summary(); summary.DominantEmotion != analytics.NotAvailable {
		fmt.Printf("💬 %s\n", analytics.Feedback(summary.DominantEmotion))
	}
}

// recordCmd 录制一次会话
func recordCmd() *cobra.Command {
	var (
		duration    time.Duration
		framesDir   string
		snapshotURL string
		export      bool
		feed        bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a session: capture frames, classify them and show the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, cfg, err := loadConfig(config.WithWatchEnabled(true))
			if err != nil {
				return err
			}
			cm.OnChange(func(updated *config.AppConfig) {
				logger.SetLevel(updated.Logging.Level)
				log.Printf("[INFO] config: reloaded, capture interval %v applies to the next session", updated.Capture.Interval)
			})

			if framesDir != "" {
				cfg.Camera.FramesDir, cfg.Camera.SnapshotURL = framesDir, ""
			}
			if snapshotURL != "" {
				cfg.Camera.SnapshotURL, cfg.Camera.FramesDir = snapshotURL, ""
			}
			device, source, err := newDevice(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			creds := credentialStore(cfg)
			cls := newClassifier(cfg, creds)
			if cfg.Classifier.GRPCHealthAddr != "" {
				if err := classifier.CheckHealth(ctx, cfg.Classifier.GRPCHealthAddr); err != nil {
					fmt.Printf("⚠️  分类服务健康检查失败: %v\n", err)
				} else {
					fmt.Printf("✅ 分类服务健康\n")
				}
			}

			hub := logger.NewWebSocketLogger()
			hubCtx, stopHub := context.WithCancel(context.Background())
			defer stopHub()
			go hub.Run(hubCtx)

			if feed {
				srv := newFeedServer(cfg, hub)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Printf("[ERROR] feed: %v", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("📡 实时推送: ws://localhost%s%s\n", cfg.Feed.Addr, cfg.Feed.Path)
			}

			factory := func() appflow.Recorder {
				current, err := cm.Get()
				if err != nil {
					current = cfg
				}
				session := capture.New(device, cls, capture.Config{
					Interval:     current.Capture.Interval,
					ArchiveVideo: current.Capture.ArchiveVideo,
					ArchiveDir:   current.Capture.ArchiveDir,
				})
				session.OnReading(func(r emotion.Reading, feedback string) {
					hub.LogReading(session.ID(), r, feedback)
					fmt.Printf("🎵 %s  %-9s %3d\n", r.Timestamp.Local().Format("15:04:05"), r.Emotion, r.Score())
				})
				session.OnStateChange(func(from, to capture.State) {
					hub.LogInfo("capture", session.ID(), fmt.Sprintf("%s -> %s", from, to))
				})
				return session
			}

			var opts []appflow.Option
			sharer, err := newSharer(cfg)
			if err != nil {
				return err
			}
			opts = append(opts, appflow.WithSharer(sharer))

			if cfg.Database.Enabled {
				archive, err := connectArchive(ctx, cfg)
				if err != nil {
					fmt.Printf("⚠️  会话归档不可用: %v\n", err)
				} else {
					defer archive.Close()
					opts = append(opts, appflow.WithArchiver(archive))
				}
			}

			flow := appflow.New(creds, factory, docstore.New(cfg.Storage.DocumentsDir), appflow.Config{
				Server:     credential.DefaultServer,
				Descriptor: camera.Descriptor{Position: cfg.CameraPosition(), Name: source},
				ImportMode: cfg.ImportMode(),
				Interval:   cfg.Capture.Interval,
			}, opts...)

			if err := flow.Start(ctx); err != nil {
				if errors.Is(err, appflow.ErrNotAuthenticated) {
					return fmt.Errorf("%w: run `groovegauge auth set-token <token>` first", err)
				}
				return err
			}

			fmt.Printf("🔴 录制中 (session %s, source %s, interval %v)\n", flow.SessionID(), source, cfg.Capture.Interval)
			if duration > 0 {
				fmt.Printf("   将在 %v 后停止，Ctrl-C 提前结束\n", duration)
			} else {
				fmt.Printf("   Ctrl-C 结束录制\n")
			}

			wait := ctx
			if duration > 0 {
				var cancel context.CancelFunc
				wait, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			<-wait.Done()

			if _, err := flow.Stop(context.Background()); err != nil {
				return err
			}
			fmt.Println()
			printReport(flow)

			if export {
				path, err := flow.Export(context.Background())
				switch {
				case errors.Is(err, appflow.ErrNothingToExport):
					fmt.Println("⚠️  没有可导出的读数")
				case err != nil:
					return err
				default:
					fmt.Printf("💾 已导出: %s\n", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "录制时长（0 表示直到 Ctrl-C）")
	cmd.Flags().StringVar(&framesDir, "frames-dir", "", "从目录回放图像帧")
	cmd.Flags().StringVar(&snapshotURL, "snapshot-url", "", "IP摄像头快照地址")
	cmd.Flags().BoolVar(&export, "export", false, "结束后导出CSV并分享")
	cmd.Flags().BoolVar(&feed, "feed", false, "启动WebSocket实时推送")
	return cmd
}

// newFeedServer 实时推送服务
func newFeedServer(cfg *config.AppConfig, hub *logger.WebSocketLogger) *http.Server {
	r := mux.NewRouter()
	r.Handle(cfg.Feed.Path, hub)
	r.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"clients": hub.ClientCount(),
		})
	}).Methods("GET")

	return &http.Server{
		Addr:              cfg.Feed.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// reportCmd 导入CSV并显示结果页
func reportCmd() *cobra.Command {
	var (
		asJSON        bool
		skipMalformed bool
		sessionID     string
	)

	cmd := &cobra.Command{
		Use:   "report [csv]",
		Short: "Show the results for an exported CSV log or an archived session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var analyzer *analytics.Analyzer
			var summary analytics.Summary
			var render func()

			switch {
			case sessionID != "":
				ctx, stop := signalContext()
				defer stop()
				archive, err := connectArchive(ctx, cfg)
				if err != nil {
					return err
				}
				defer archive.Close()

				loaded, err := archive.LoadSession(ctx, sessionID)
				if err != nil {
					return err
				}
				analyzer = analytics.NewAnalyzer(loaded, cfg.Capture.Interval)
				summary = analyzer.Summary()
				render = func() {
					fmt.Println(report.Render(summary, analyzer.Series(), reportWidth))
				}

			case len(args) == 1:
				mode := cfg.ImportMode()
				if skipMalformed {
					mode = sessionlog.ImportSkipMalformed
				}
				flow := appflow.New(credential.NewMemoryStore(), nil, docstore.New(cfg.Storage.DocumentsDir), appflow.Config{
					ImportMode: mode,
					Interval:   cfg.Capture.Interval,
				})
				importReport, err := flow.Import(context.Background(), args[0])
				if err != nil {
					var lineErr *sessionlog.LineError
					if errors.As(err, &lineErr) {
						return fmt.Errorf("%w (use --skip-malformed to ignore bad rows)", err)
					}
					return err
				}
				if importReport.Skipped > 0 && !asJSON {
					fmt.Printf("⚠️  跳过 %d 行格式错误的数据\n", importReport.Skipped)
				}
				analyzer = flow.Analyzer()
				summary = flow.Summary()
				render = func() { printReport(flow) }

			default:
				return errors.New("need a CSV path or --session")
			}

			if asJSON {
				out := analyzer.GenerateReport()
				out["summary"] = summary
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "以JSON输出完整报告")
	cmd.Flags().BoolVar(&skipMalformed, "skip-malformed", false, "跳过格式错误的行")
	cmd.Flags().StringVar(&sessionID, "session", "", "从数据库归档读取会话")
	return cmd
}

// replayCmd 把导出的日志按原始节奏推送到实时推送
func replayCmd() *cobra.Command {
	var (
		speed    float64
		emotions []string
		maxGap   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay <csv>",
		Short: "Replay an exported log on the live feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}

			imported, importReport, err := docstore.New(cfg.Storage.DocumentsDir).Import(args[0], cfg.ImportMode())
			if err != nil {
				return err
			}
			if importReport.Skipped > 0 {
				fmt.Printf("⚠️  跳过 %d 行格式错误的数据\n", importReport.Skipped)
			}

			ctx, stop := signalContext()
			defer stop()

			hub := logger.NewWebSocketLogger()
			go hub.Run(ctx)

			srv := newFeedServer(cfg, hub)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Printf("[ERROR] feed: %v", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			sessionID := "replay-" + strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			replayer := replay.New(imported, &replay.Config{
				Speed:    replay.Speed(speed),
				Emotions: emotions,
				MaxGap:   maxGap,
			})
			replayer.AddCallback(func(e replay.Event) error {
				hub.LogReading(sessionID, e.Reading, analytics.Feedback(e.Reading.Emotion))
				fmt.Printf("▶️  %4d  %s  %-9s %3d\n", e.Index, e.Reading.Timestamp.Local().Format("15:04:05"), e.Reading.Emotion, e.Reading.Score())
				return nil
			})

			fmt.Printf("📡 回放 %d 条读数到 ws://localhost%s%s (x%.1f)\n", imported.Len(), cfg.Feed.Addr, cfg.Feed.Path, speed)
			if err := replayer.Play(ctx); err != nil {
				return err
			}
			replayer.Wait()

			stats := replayer.GetStats()
			fmt.Printf("✅ 回放完成: %d 条，跳过 %d 条，用时 %v\n", stats.Replayed, stats.Skipped, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", float64(replay.SpeedNormal), "回放倍率（0 表示无延迟）")
	cmd.Flags().StringSliceVar(&emotions, "emotions", nil, "只回放这些情绪")
	cmd.Flags().DurationVar(&maxGap, "max-gap", 10*time.Second, "相邻读数的最长等待")
	return cmd
}

// logsCmd 列出已导出的日志
func logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "List exported session logs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			entries, err := docstore.New(cfg.Storage.DocumentsDir).List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Printf("📂 %s 中没有导出的日志\n", cfg.Storage.DocumentsDir)
				return nil
			}
			for _, e := range entries {
				fmt.Printf("📄 %s  %6d B  %s\n", e.ModTime.Local().Format("2006-01-02 15:04"), e.Size, e.Path)
			}
			return nil
		},
	}
}

// sessionsCmd 列出数据库归档的会话
func sessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions archived in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			archive, err := connectArchive(ctx, cfg)
			if err != nil {
				return err
			}
			defer archive.Close()

			sessions, err := archive.ListSessions(ctx, limit)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("🗂️  %s  %s  %d readings\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.ReadingCount)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "最多显示的会话数")
	return cmd
}

// watchCmd 订阅实时推送
func watchCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live reading feed of a running recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if url == "" {
				addr := cfg.Feed.Addr
				if strings.HasPrefix(addr, ":") {
					addr = "localhost" + addr
				}
				url = "ws://" + addr + cfg.Feed.Path
			}

			client := wsclient.New(wsclient.DefaultClientConfig(url))
			client.SetMessageHandler(func(msg logger.LogMessage) {
				if msg.Reading != nil {
					fmt.Printf("🎵 %s  %-9s %3d  %s\n",
						time.UnixMilli(msg.Reading.Timestamp).Format("15:04:05"),
						msg.Reading.Emotion, msg.Reading.Score, msg.Reading.Feedback)
					return
				}
				fmt.Printf("[%s] %s\n", msg.Level, msg.Message)
			})
			client.SetStateChangeHandler(func(from, to wsclient.ClientState) {
				if to == wsclient.StateReconnecting {
					fmt.Println("🔄 连接断开，正在重连...")
				}
			})

			ctx, stop := signalContext()
			defer stop()

			if err := client.Connect(ctx); err != nil {
				return err
			}
			fmt.Printf("✅ 已连接 %s\n", url)

			select {
			case <-ctx.Done():
			case <-client.Done():
				fmt.Println("⚠️  推送已结束")
			}
			client.Close()

			stats := client.GetStats()
			fmt.Printf("📊 收到 %v 条，丢弃 %v 条，重连 %v 次\n", stats["received"], stats["dropped"], stats["reconnects"])
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "推送地址（默认按 feed 配置）")
	return cmd
}

// serveClassifierCmd 运行参考分类服务
func serveClassifierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-classifier",
		Short: "Run the reference /analyze-emotion service",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sc := classifierserver.DefaultConfig()
			sc.Addr = cfg.Server.Addr
			sc.GRPCAddr = cfg.Server.GRPCAddr
			server := classifierserver.New(sc)

			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()

			fmt.Printf("✅ 分类服务已启动: http://localhost%s%s\n", sc.Addr, classifier.AnalyzePath)
			fmt.Printf("💓 gRPC健康检查: %s\n", sc.GRPCAddr)

			ctx, stop := signalContext()
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			fmt.Println("\n🔄 正在关闭服务...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			fmt.Println("✅ 服务已关闭")
			return nil
		},
	}
}

// benchClassifierCmd 对分类服务做并发压测
func benchClassifierCmd() *cobra.Command {
	var (
		clients   int
		duration  time.Duration
		rps       int
		framesDir string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "bench-classifier",
		Short: "Load test the /analyze-emotion service with recorded frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if framesDir == "" {
				framesDir = cfg.Camera.FramesDir
			}
			if framesDir == "" {
				return errors.New("a frames directory is required (--frames-dir or camera.frames_dir)")
			}

			ctx, stop := signalContext()
			defer stop()

			frames, err := loadFrames(ctx, framesDir)
			if err != nil {
				return err
			}

			tester := loadtest.New(newClassifier(cfg, credentialStore(cfg)), loadtest.Config{
				ConcurrentClients: clients,
				Duration:          duration,
				TargetRPS:         rps,
				Frames:            frames,
			})
			result, err := tester.Run(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Printf("📊 请求: %d (成功 %d, 失败 %d)\n", result.TotalRequests, result.SuccessfulRequests, result.FailedRequests)
			fmt.Printf("⚡ 吞吐: %.1f req/s\n", result.RequestsPerSecond)
			fmt.Printf("⏱️  延迟: min %.1fms avg %.1fms p50 %.1fms p95 %.1fms p99 %.1fms max %.1fms\n",
				result.MinLatency, result.AvgLatency, result.P50Latency, result.P95Latency, result.P99Latency, result.MaxLatency)
			for kind, n := range result.ErrorsByType {
				fmt.Printf("  ❌ %s: %d\n", kind, n)
			}
			for label, n := range result.Emotions {
				fmt.Printf("  %s: %d\n", label, n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&clients, "clients", 4, "concurrent clients")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().IntVar(&rps, "rps", 0, "target requests per second across all clients (0 = unlimited)")
	cmd.Flags().StringVar(&framesDir, "frames-dir", "", "directory of JPEG/PNG frames to send")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// loadFrames 从帧目录读出全部帧
func loadFrames(ctx context.Context, dir string) ([][]byte, error) {
	cam := camera.NewDirectoryCamera(dir, camera.GrantAll())
	if err := cam.Open(ctx); err != nil {
		return nil, err
	}
	defer cam.Release()

	frames := make([][]byte, 0, cam.FrameCount())
	for i := 0; i < cam.FrameCount(); i++ {
		frame, err := cam.CaptureFrame(ctx)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// authCmd 凭证管理
func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored classifier credential",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-token <token>",
		Short: "Store the access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := credentialStore(cfg).Set(credential.DefaultServer, args[0]); err != nil {
				return err
			}
			fmt.Printf("🔑 已保存 %s 的令牌\n", credential.DefaultServer)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Sign out and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flow := appflow.New(credentialStore(cfg), nil, docstore.New(cfg.Storage.DocumentsDir), appflow.Config{})
			if err := flow.SignOut(); err != nil {
				return err
			}
			fmt.Println("👋 已退出登录")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a token is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store := credentialStore(cfg)
			token, err := store.Get(credential.DefaultServer)
			switch {
			case errors.Is(err, credential.ErrNotFound):
				fmt.Printf("🔒 未登录 (%s)\n", store.Path())
			case err != nil:
				return err
			default:
				fmt.Printf("🔓 已登录 %s, token %s\n", credential.DefaultServer, maskToken(token))
			}
			return nil
		},
	})

	return cmd
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:2] + strings.Repeat("*", len(token)-4) + token[len(token)-2:]
}

// configCmd 配置查看
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var asYAML bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, _, err := loadConfig()
			if err != nil {
				return err
			}
			summary, err := cm.GetConfigSummary()
			if err != nil {
				return err
			}

			if asYAML {
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(summary)
			}

			keys := make([]string, 0, len(summary))
			for k := range summary {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Println("⚙️  GrooveGauge 配置")
			for _, k := range keys {
				fmt.Printf("  %-18s %v\n", k, summary[k])
			}
			return nil
		},
	}
	show.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	cmd.AddCommand(show)

	return cmd
}
