package filewatcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hailuo-batch/app/config"
	"hailuo-batch/app/logger"

	"github.com/fsnotify/fsnotify"
)

// HandleFunc 处理一个已移入归档目录的任务文件
type HandleFunc func(path string) error

// InboxWatcher 监控收件箱目录，新出现的 *.json 任务文件移入归档目录后交给 handle 处理
type InboxWatcher struct {
	config  config.WatchConfig
	handle  HandleFunc
	watcher *fsnotify.Watcher
	logger  *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	watching bool
	inflight map[string]bool

	// 文件大小稳定的检查间隔与最长等待
	readyInterval time.Duration
	readyTimeout  time.Duration
}

// NewInboxWatcher 创建收件箱监控器
func NewInboxWatcher(cfg config.WatchConfig, handle HandleFunc, log *logger.Logger) (*InboxWatcher, error) {
	if cfg.InboxDir == "" || cfg.ProcessedDir == "" {
		return nil, fmt.Errorf("收件箱目录和归档目录不能为空")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &InboxWatcher{
		config:        cfg,
		handle:        handle,
		watcher:       watcher,
		logger:        log,
		stopCh:        make(chan struct{}),
		inflight:      make(map[string]bool),
		readyInterval: 500 * time.Millisecond,
		readyTimeout:  30 * time.Second,
	}, nil
}

// Start 启动监控，并处理收件箱中已存在的任务文件
func (w *InboxWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("收件箱监控器已经在运行")
	}

	for _, dir := range []string{w.config.InboxDir, w.config.ProcessedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}

	if err := w.watcher.Add(w.config.InboxDir); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	w.watching = true
	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Infof("收件箱监控器已启动，监控目录: %s", w.config.InboxDir)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.processExisting()
	}()

	return nil
}

// Stop 停止监控并等待正在处理的文件
func (w *InboxWatcher) Stop() error {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = false
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	w.wg.Wait()

	w.logger.Info("收件箱监控器已停止")
	return err
}

// watchLoop 监控事件循环
func (w *InboxWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.dispatch(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("收件箱监控器错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// processExisting 处理启动前已放入收件箱的文件
func (w *InboxWatcher) processExisting() {
	entries, err := os.ReadDir(w.config.InboxDir)
	if err != nil {
		w.logger.Warnf("读取收件箱失败: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.dispatch(filepath.Join(w.config.InboxDir, entry.Name()))
	}
}

// dispatch 异步处理单个文件，同一路径同时只处理一次
func (w *InboxWatcher) dispatch(path string) {
	if !isTaskFile(path) {
		return
	}

	w.mu.Lock()
	if w.inflight[path] || !w.watching {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = true
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.inflight, path)
			w.mu.Unlock()
		}()

		if err := w.processFile(path); err != nil {
			w.logger.Errorf("处理任务文件失败: %s, 错误: %v", path, err)
		}
	}()
}

func (w *InboxWatcher) processFile(path string) error {
	if err := w.waitForFileReady(path); err != nil {
		// 文件已被之前的事件处理并移走
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	target := filepath.Join(w.config.ProcessedDir, time.Now().Format("20060102-150405")+"_"+filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("移动任务文件失败: %w", err)
	}

	w.logger.Infof("收到任务文件: %s", target)
	return w.handle(target)
}

// waitForFileReady 等待文件大小稳定
func (w *InboxWatcher) waitForFileReady(path string) error {
	timeout := time.After(w.readyTimeout)
	var lastSize int64 = -1

	for {
		select {
		case <-w.stopCh:
			return fmt.Errorf("监控器已停止")
		case <-timeout:
			return fmt.Errorf("等待文件就绪超时: %s", path)
		case <-time.After(w.readyInterval):
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("获取文件信息失败: %w", err)
			}

			size := info.Size()
			if size == lastSize && size > 0 {
				return nil
			}
			lastSize = size
		}
	}
}

func isTaskFile(path string) bool {
	name := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(name), ".json") && !strings.HasPrefix(name, ".")
}
