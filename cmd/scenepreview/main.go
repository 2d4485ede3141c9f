package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scenecut/internal/clock"
	"github.com/ivlev/scenecut/internal/config"
	"github.com/ivlev/scenecut/internal/engine"
	"github.com/ivlev/scenecut/internal/project"
	"github.com/ivlev/scenecut/internal/source"
	"github.com/ivlev/scenecut/internal/system"
)

// Задаётся при сборке: -ldflags "-X main.buildVersion=..."
var buildVersion = "dev"

func main() {
	// Увеличиваем лимит открытых файлов: кадры пишутся параллельно
	system.InitResourceLimits(4096)

	projectPtr := flag.String("project", "", "Путь к YAML проекта (по умолчанию: самый свежий файл в projects/)")
	configPtr := flag.String("config", "", "YAML с настройками, заменяет настройки проекта")
	outPtr := flag.String("out", "", "Папка для кадров (если пусто, генерируется автоматически в output/)")
	fromPtr := flag.Float64("from", 0, "Начало фрагмента (сек)")
	toPtr := flag.Float64("to", 0, "Конец фрагмента (сек, 0 - до конца таймлайна)")
	fpsPtr := flag.Int("fps", 0, "FPS (0 - из настроек)")
	workersPtr := flag.Int("workers", runtime.NumCPU(), "Потоки записи PNG")
	focusPtr := flag.String("autofocus", "", "ID картинок через запятую: построить проезд камеры по найденным блокам")
	detectorPtr := flag.String("detector", "edges", "Детектор блоков: edges, contrast")
	savePtr := flag.Bool("save", false, "Сохранить проект с новыми треками в projects/")
	statsPtr := flag.Bool("stats", false, "Показать отчёт о производительности")
	logLevelPtr := flag.String("log-level", "", "Уровень логов: debug, info, warn, error")

	flag.Parse()

	projectPath := *projectPtr
	if projectPath == "" {
		latest, err := project.FindLatest("projects")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите проект в projects/", err)
		}
		projectPath = latest
		fmt.Printf("[*] Выбран проект: %s\n", projectPath)
	}

	doc, err := project.Read(projectPath)
	if err != nil {
		log.Fatalf("[-] Ошибка чтения проекта: %v", err)
	}
	if *configPtr != "" {
		cfg, err := config.Load(*configPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка конфигурации: %v", err)
		}
		doc.Config = cfg
	}
	if *fpsPtr > 0 {
		doc.Config.FPS = *fpsPtr
	}
	if *logLevelPtr != "" {
		doc.Config.LogLevel = *logLevelPtr
	}
	if *statsPtr {
		doc.Config.ShowStats = true
	}
	doc.Config.BuildVersion = buildVersion

	logger := newLogger(doc.Config.LogLevel)
	slog.SetDefault(logger)

	outDir := *outPtr
	if outDir == "" {
		name := doc.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(projectPath), filepath.Ext(projectPath))
		}
		cleanName := strings.ReplaceAll(name, " ", "_")
		outDir = filepath.Join("output", fmt.Sprintf("%s_%s", cleanName, time.Now().Format("2006-01-02_15-04-05")))
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatalf("[-] Не удалось создать %s: %v", outDir, err)
	}

	run := &preview{
		doc:      doc,
		path:     projectPath,
		outDir:   outDir,
		from:     *fromPtr,
		to:       *toPtr,
		workers:  *workersPtr,
		focus:    splitIDs(*focusPtr),
		detector: *detectorPtr,
		save:     *savePtr,
		log:      logger,
	}
	if err := run.Run(context.Background()); err != nil {
		log.Fatalf("[-] Ошибка превью: %v", err)
	}
	fmt.Printf("[+++] Успех! Кадры: %s\n", outDir)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

type preview struct {
	doc      *project.File
	path     string
	outDir   string
	from, to float64
	workers  int
	focus    []string
	detector string
	save     bool
	log      *slog.Logger
}

func (p *preview) Run(ctx context.Context) error {
	startTime := time.Now()
	cfg := p.doc.Config

	fmt.Println("--- [PROJECT: SCENE PREVIEW] ---")
	fmt.Printf("[*] Проект: %s | Сцен: %d | Клипов: %d | %dx%d @ %d fps\n",
		filepath.Base(p.path), len(p.doc.Scenes), len(p.doc.Timeline.Clips), cfg.Width, cfg.Height, cfg.FPS)

	clk := clock.NewManual(time.Now())
	e, err := engine.Load(p.doc,
		engine.WithScheduler(clk),
		engine.WithLogger(p.log),
		engine.WithLoader(source.NewFiles(filepath.Dir(p.path))),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Preload(ctx); err != nil {
		log.Printf("[!] Не все ресурсы загружены: %v", err)
	}

	for _, id := range p.focus {
		regions, err := e.FocusPath(ctx, id, p.detector)
		if err != nil {
			log.Printf("[!] Автофокус %s: %v", id, err)
			continue
		}
		fmt.Printf("[*] Автофокус %s: найдено блоков: %d\n", id, len(regions))
	}
	if p.save && len(p.focus) > 0 {
		path := project.TimestampedPath("projects", time.Now())
		out, err := e.Export(p.doc.Name)
		if err != nil {
			return err
		}
		if err := project.Write(out, path); err != nil {
			return err
		}
		fmt.Printf("[*] Проект сохранён: %s\n", path)
	}

	to := p.to
	if to <= 0 || to > cfg.Duration {
		to = cfg.Duration
	}
	times := frameTimes(p.from, to, cfg.FPS)
	if len(times) == 0 {
		return fmt.Errorf("пустой фрагмент %.2f-%.2f", p.from, to)
	}
	fmt.Printf("[*] Рендеринг %d кадров (%.2fs - %.2fs)...\n", len(times), p.from, to)

	step := time.Second / time.Duration(cfg.FPS)
	var renderTime time.Duration
	var hits, misses, errs int

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.workers))
	renderStart := time.Now()
	for i, t := range times {
		e.SetPlayhead(t)
		clk.Step(step)
		m := e.Metrics()
		renderTime += m.RenderDuration
		hits += m.CacheHits
		misses += m.CacheMisses
		errs += m.Errors

		frame := e.Frame()
		path := filepath.Join(p.outDir, fmt.Sprintf("frame_%05d.png", i))
		g.Go(func() error {
			return writePNG(path, frame)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	writeTime := time.Since(renderStart) - renderTime
	totalTime := time.Since(startTime)
	fps := float64(len(times)) / totalTime.Seconds()

	if errs > 0 {
		log.Printf("[!] Ошибок рендеринга элементов: %d", errs)
	}
	if cfg.ShowStats {
		p.report(len(times), totalTime, renderTime, writeTime, fps, hits, misses)
	}
	return nil
}

func (p *preview) report(frames int, total, render, write time.Duration, fps float64, hits, misses int) {
	cfg := p.doc.Config
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}
	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Rendering (CPU): %.2fs\n"+
			"PNG Writing: %.2fs\n"+
			"Cache Hit Rate: %.1f%%\n"+
			"Effective FPS: %.2f\n",
		cfg.BuildVersion, total.Seconds(), render.Seconds(), write.Seconds(), hitRate, fps,
	)
	if u, err := system.ProcessUsage(); err == nil {
		report += fmt.Sprintf("Memory (RSS): %.1f MB | CPU: %.1f%% | Host RAM used: %.1f%%\n",
			float64(u.RSS)/1024/1024, u.CPUPercent, u.UsedPercent)
	}
	report += "----------------------------\n"
	fmt.Print(report)

	// Логирование в файл
	logEntry := fmt.Sprintf("[%s] Build: %s | Project: %s | Frames: %d | Total: %.2fs | Render: %.2fs | Write: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		cfg.BuildVersion,
		filepath.Base(p.path),
		frames,
		total.Seconds(),
		render.Seconds(),
		write.Seconds(),
		fps,
	)
	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(logEntry)
		f.Close()
	} else {
		fmt.Printf("[!] Не удалось записать benchmark.log: %v\n", err)
	}
}

// frameTimes returns the playhead time of every frame in [from, to).
func frameTimes(from, to float64, fps int) []float64 {
	if fps <= 0 || to <= from {
		return nil
	}
	from = max(0, from)
	n := int(math.Ceil((to-from)*float64(fps) - 1e-9))
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)/float64(fps)
	}
	return out
}

func writePNG(path string, im image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, im); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
