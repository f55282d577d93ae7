package service

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoQuotaConfigured — бэкенд сообщает, что квота для пользователя не
// настроена. Это не сбой измерения: запись просто пропускается,
// как будто её нет.
var ErrNoQuotaConfigured = errors.New("no quota configured in storage backend")

// Measurement — показания бэкенда хранилища для пары (пользователь, зона)
type Measurement struct {
	// AllocatedValue > 0 означает, что бэкенд авторитетен и для лимита
	AllocatedValue float64
	AllocatedUnit  string
	UsedBytes      int64
	// Опубликованные данные считаются отдельно: их вес в квоте
	// задаёт политика
	PublishedBytes int64
}

// UsageMeasurementProvider опрашивает бэкенд хранилища о фактическом
// использовании. Реализации оборачивают инструментарий самого бэкенда;
// логика учёта об этих деталях не знает. Любая ошибка, кроме
// ErrNoQuotaConfigured, считается временным сбоем измерения.
type UsageMeasurementProvider interface {
	Measure(ctx context.Context, userID, zone string) (*Measurement, error)
}

type resourceUsageStore interface {
	MeasureUsage(ctx context.Context, userID, zone string) (privateBytes, publishedBytes int64, err error)
}

// ResourceMeasurementProvider считает использование зоны home по таблице
// ресурсов. Лимитом база не управляет, поэтому AllocatedValue всегда 0.
type ResourceMeasurementProvider struct {
	resources resourceUsageStore
}

func NewResourceMeasurementProvider(resources resourceUsageStore) *ResourceMeasurementProvider {
	return &ResourceMeasurementProvider{resources: resources}
}

func (p *ResourceMeasurementProvider) Measure(ctx context.Context, userID, zone string) (*Measurement, error) {
	privateBytes, publishedBytes, err := p.resources.MeasureUsage(ctx, userID, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to measure resource usage: %w", err)
	}

	return &Measurement{
		UsedBytes:      privateBytes,
		PublishedBytes: publishedBytes,
	}, nil
}
