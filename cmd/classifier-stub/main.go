package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"GrooveGauge/internal/classifierserver"
	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/logger"
)

// 命令行参数
var (
	addr       = flag.String("addr", ":3000", "HTTP监听地址")
	grpcAddr   = flag.String("grpc-addr", ":3001", "gRPC健康检查监听地址")
	fixed      = flag.String("fixed", "", "固定返回的情绪（none 表示无人脸），为空时按图像哈希生成")
	noValidate = flag.Bool("no-validate", false, "不校验图像格式")
	logLevel   = flag.String("log-level", "info", "日志级别")
)

func main() {
	flag.Parse()
	logger.InitLogger(*logLevel)

	fmt.Println("🎧 GrooveGauge 参考分类服务")
	fmt.Println("==========================")
	fmt.Println()

	config := classifierserver.DefaultConfig()
	config.Addr = *addr
	config.GRPCAddr = *grpcAddr
	config.ValidateImages = !*noValidate

	if *fixed != "" {
		detector, err := fixedDetector(*fixed)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		config.Detector = detector
		fmt.Printf("🎭 固定情绪: %s\n", *fixed)
	}

	server := classifierserver.New(config)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	fmt.Printf("✅ HTTP: %s  gRPC: %s\n", *addr, *grpcAddr)

	// 优雅关闭
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("❌ 服务异常退出: %v", err)
	case <-c:
	}

	fmt.Println("\n🔄 正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("服务关闭错误: %v", err)
	}

	stats := server.GetStats()
	fmt.Printf("📊 请求 %v 次，错误 %v 次\n", stats["total_requests"], stats["error_count"])
}

// fixedDetector 所有图像都返回同一情绪的单张人脸
func fixedDetector(label string) (classifierserver.Detector, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == emotion.NoFace {
		return classifierserver.DetectorFunc(func(context.Context, []byte) ([]classifierserver.Face, error) {
			return nil, nil
		}), nil
	}

	known := false
	for _, v := range emotion.Vocabulary {
		if v == label {
			known = true
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown emotion %q (want one of %s)", label, strings.Join(emotion.Vocabulary, ", "))
	}

	face := classifierserver.Face{
		Box:      [4]int{0, 0, 48, 48},
		Emotions: map[string]float64{label: 1},
	}
	return classifierserver.DetectorFunc(func(context.Context, []byte) ([]classifierserver.Face, error) {
		return []classifierserver.Face{face}, nil
	}), nil
}
