package upload

import (
	"context"
	"fmt"
	"sort"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/blob"

	"go.uber.org/zap"
)

// CompactReport итог прохода уплотнения
type CompactReport struct {
	ObjectsScanned  int      `json:"objects_scanned"`
	DuplicateGroups int      `json:"duplicate_groups"`
	ObjectsRemoved  int      `json:"objects_removed"`
	BytesReclaimed  int64    `json:"bytes_reclaimed"`
	RemovedRefs     []string `json:"removed_refs,omitempty"`
	DryRun          bool     `json:"dry_run"`
}

// Compact убирает физические дубликаты: из каждой группы объектов с
// одним отпечатком выживает самый ранний, остальные удаляются.
// Проход идемпотентен — повторный запуск на уплотнённом хранилище
// ничего не удаляет. При dryRun отчёт считается, удалений нет.
func (s *Service) Compact(ctx context.Context, dryRun bool) (*CompactReport, error) {
	// 1. Полный список объектов
	objects, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	report := &CompactReport{
		ObjectsScanned: len(objects),
		DryRun:         dryRun,
	}

	// 2. Группируем по отпечатку; объекты без тега пропускаем —
	// про их содержимое ничего не известно
	groups := make(map[string][]blob.Object)
	for _, obj := range objects {
		if obj.ContentHash == "" {
			continue
		}
		groups[obj.ContentHash] = append(groups[obj.ContentHash], obj)
	}

	// 3. В каждой группе выживает самый ранний объект — тот же выбор,
	// что делает поиск по отпечатку, иначе живые ссылки осиротеют
	for fingerprint, group := range groups {
		if len(group) < 2 {
			continue
		}
		report.DuplicateGroups++

		sort.Slice(group, func(i, j int) bool {
			if group[i].UploadedAt.Equal(group[j].UploadedAt) {
				return group[i].Ref < group[j].Ref
			}
			return group[i].UploadedAt.Before(group[j].UploadedAt)
		})

		for _, victim := range group[1:] {
			if !dryRun {
				if err := s.store.Delete(ctx, victim.Ref); err != nil {
					s.logger.Error("Failed to delete duplicate object",
						zap.String("ref", victim.Ref),
						zap.String("content_hash", fingerprint),
						zap.Error(err))
					continue
				}
			}
			report.ObjectsRemoved++
			report.BytesReclaimed += victim.Size
			report.RemovedRefs = append(report.RemovedRefs, victim.Ref)
		}
	}

	sort.Strings(report.RemovedRefs)

	s.logger.Info("Compaction pass finished",
		zap.Int("objects_scanned", report.ObjectsScanned),
		zap.Int("duplicate_groups", report.DuplicateGroups),
		zap.Int("objects_removed", report.ObjectsRemoved),
		zap.Int64("bytes_reclaimed", report.BytesReclaimed),
		zap.Bool("dry_run", dryRun),
	)

	return report, nil
}
