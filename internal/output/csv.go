// Package output 负责结果表、链接表与错误日志的落盘
package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/MailFinder/internal/models"
)

var (
	// LinksHeader 链接表表头
	LinksHeader = []string{"url"}
	// ResultsHeader 结果表表头
	ResultsHeader = []string{"name", "country", "email"}
	// ErrorsHeader 错误日志表头
	ErrorsHeader = []string{"error", "url"}
)

// LinksFile 行业对应的链接表文件名
func LinksFile(sector string) string {
	return fmt.Sprintf("links_%s.csv", sector)
}

// ResultsFile 行业对应的结果表文件名
func ResultsFile(sector string) string {
	return fmt.Sprintf("emails_%s.csv", sector)
}

// WriteCSV 整表覆盖写入
// 先写临时文件再重命名,中途失败不会留下半截文件
func WriteCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeRows(tmp, header, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("写入CSV失败 [%s]: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("重命名CSV失败 [%s]: %w", path, err)
	}
	return nil
}

func writeRows(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// ReadCSV 读取CSV并按表头列名取值
// 文件不存在或为空时返回空表;缺少必需列时报错
func ReadCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	got, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	index := make(map[string]int, len(got))
	for i, name := range got {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range header {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("缺少必需列 %q", name)
		}
	}

	rows := make([][]string, 0)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("读取数据行失败: %w", err)
		}
		row := make([]string, len(header))
		for i, name := range header {
			if j := index[name]; j < len(rec) {
				row[i] = rec[j]
			}
		}
		rows = append(rows, row)
	}
}

// MergeErrorLog 将新错误并入已有错误日志,按url去重保留首次出现,然后整表重写
// 返回合并后的行数
func MergeErrorLog(path string, records []models.ErrorRecord) (int, error) {
	existing, err := ReadCSV(path, ErrorsHeader)
	if err != nil {
		return 0, fmt.Errorf("读取错误日志失败: %w", err)
	}

	seen := make(map[string]struct{}, len(existing)+len(records))
	merged := make([][]string, 0, len(existing)+len(records))
	add := func(errText, rawURL string) {
		if _, dup := seen[rawURL]; dup {
			return
		}
		seen[rawURL] = struct{}{}
		merged = append(merged, []string{errText, rawURL})
	}
	for _, row := range existing {
		add(row[0], row[1])
	}
	for _, rec := range records {
		add(rec.Error, rec.URL)
	}

	if err := WriteCSV(path, ErrorsHeader, merged); err != nil {
		return 0, err
	}
	return len(merged), nil
}
