package output

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/RecoveryAshes/MailFinder/internal/crawlers"
	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// ErrWriterClosed 写入器已关闭
var ErrWriterClosed = errors.New("写入器已关闭")

// SectorFiles 一个行业落盘后的文件
type SectorFiles struct {
	Links   string
	Results string
	Rows    int
}

// sectorTable 一个行业的结果,按加入顺序保存
type sectorTable struct {
	records []models.CompanyRecord
	links   map[string]struct{}
}

// Writer 串行写入器
// 所有状态只由后台goroutine访问,worker通过channel投递
type Writer struct {
	baseDir      string
	errorLogPath string

	ops  chan func()
	done chan struct{}

	// 以下字段仅在后台goroutine中访问
	sectors   map[string]*sectorTable
	errors    []models.ErrorRecord
	added     int
	dupes     int
	errLogged int

	mu     sync.RWMutex
	closed bool
}

// NewWriter 创建写入器并启动后台goroutine
func NewWriter(baseDir, errorLogPath string) *Writer {
	if errorLogPath == "" {
		errorLogPath = filepath.Join(baseDir, "errors.csv")
	}
	w := &Writer{
		baseDir:      baseDir,
		errorLogPath: errorLogPath,
		ops:          make(chan func(), 64),
		done:         make(chan struct{}),
		sectors:      make(map[string]*sectorTable),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for op := range w.ops {
		op()
	}
}

// submit 投递操作,关闭后返回ErrWriterClosed
func (w *Writer) submit(op func()) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.ops <- op
	return nil
}

// call 投递操作并等待完成
func (w *Writer) call(op func() error) error {
	result := make(chan error, 1)
	if err := w.submit(func() { result <- op() }); err != nil {
		return err
	}
	return <-result
}

func (w *Writer) table(sector string) *sectorTable {
	t, ok := w.sectors[sector]
	if !ok {
		t = &sectorTable{links: make(map[string]struct{})}
		w.sectors[sector] = t
	}
	return t
}

// Add 加入一条公司记录,同一行业中规范化后相同的链接只保留第一条
func (w *Writer) Add(sector string, rec models.CompanyRecord) {
	err := w.submit(func() {
		t := w.table(sector)
		key := crawlers.CanonicalLink(rec.Link)
		if _, dup := t.links[key]; dup {
			w.dupes++
			utils.Debugf("重复的公司链接,跳过: %s", rec.Link)
			return
		}
		t.links[key] = struct{}{}
		t.records = append(t.records, rec)
		w.added++
	})
	if err != nil {
		utils.Warnf("丢弃公司记录 %s: %v", rec.Link, err)
	}
}

// LogError 记录一条错误,关闭或Flush时并入错误日志
func (w *Writer) LogError(rec models.ErrorRecord) {
	err := w.submit(func() {
		w.errors = append(w.errors, rec)
		w.errLogged++
	})
	if err != nil {
		utils.Warnf("丢弃错误记录 %s: %v", rec.URL, err)
	}
}

// Flush 将一个行业的链接表与结果表整表写入磁盘,同时刷新错误日志
// 行业没有任何记录时也会写出只有表头的文件
func (w *Writer) Flush(sector string) (SectorFiles, error) {
	var files SectorFiles
	err := w.call(func() error {
		t := w.table(sector)
		links := make([][]string, 0, len(t.records))
		results := make([][]string, 0, len(t.records))
		for _, rec := range t.records {
			links = append(links, []string{rec.Link})
			results = append(results, []string{rec.Name, rec.Country, rec.Email})
		}

		files = SectorFiles{
			Links:   filepath.Join(w.baseDir, LinksFile(sector)),
			Results: filepath.Join(w.baseDir, ResultsFile(sector)),
			Rows:    len(t.records),
		}
		if err := WriteCSV(files.Links, LinksHeader, links); err != nil {
			return err
		}
		if err := WriteCSV(files.Results, ResultsHeader, results); err != nil {
			return err
		}
		return w.flushErrors()
	})
	return files, err
}

// flushErrors 只在后台goroutine中调用
func (w *Writer) flushErrors() error {
	if _, err := MergeErrorLog(w.errorLogPath, w.errors); err != nil {
		return err
	}
	w.errors = w.errors[:0]
	return nil
}

// Records 返回某行业当前的记录副本
func (w *Writer) Records(sector string) []models.CompanyRecord {
	var out []models.CompanyRecord
	_ = w.call(func() error {
		t := w.table(sector)
		out = append(make([]models.CompanyRecord, 0, len(t.records)), t.records...)
		return nil
	})
	return out
}

// Counts 返回已加入、重复与错误记录数
func (w *Writer) Counts() (added, duplicates, errorsLogged int) {
	_ = w.call(func() error {
		added, duplicates, errorsLogged = w.added, w.dupes, w.errLogged
		return nil
	})
	return
}

// ErrorLogPath 错误日志路径
func (w *Writer) ErrorLogPath() string {
	return w.errorLogPath
}

// Close 写出剩余错误并停止后台goroutine
// 错误日志在关闭后一定存在
func (w *Writer) Close() error {
	flushErr := w.call(w.flushErrors)
	if errors.Is(flushErr, ErrWriterClosed) {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return flushErr
	}
	w.closed = true
	close(w.ops)
	w.mu.Unlock()

	<-w.done
	return flushErr
}
