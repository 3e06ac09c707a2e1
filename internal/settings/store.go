package settings

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

// Store — текущий снапшот runtime-настроек. Снапшот неизменяемый: каждое
// изменение публикует новое значение, читатели никогда не видят половину апдейта.
type Store struct {
	path string
	v    *viper.Viper

	cur atomic.Pointer[models.RuntimeTradingSettings]

	mu        sync.Mutex // сериализует запись
	listeners []func(old, cur models.RuntimeTradingSettings)
}

// NewStore читает файл настроек поверх дефолтов. Пустой путь или отсутствующий
// файл — работаем на дефолтах.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, v: viper.New()}
	def := models.DefaultRuntimeSettings()
	s.cur.Store(&def)

	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("[SETTINGS] file %s not found, using defaults", path)
		return s, nil
	}

	s.v.SetConfigFile(path)
	st, err := s.read()
	if err != nil {
		return nil, err
	}
	s.cur.Store(&st)
	return s, nil
}

func (s *Store) read() (models.RuntimeTradingSettings, error) {
	if err := s.v.ReadInConfig(); err != nil {
		return models.RuntimeTradingSettings{}, fmt.Errorf("settings: read %s: %w", s.path, err)
	}
	// поля, которых нет в файле, остаются дефолтными
	st := models.DefaultRuntimeSettings()
	if err := s.v.Unmarshal(&st); err != nil {
		return models.RuntimeTradingSettings{}, fmt.Errorf("settings: decode %s: %w", s.path, err)
	}
	if err := st.Validate(); err != nil {
		return models.RuntimeTradingSettings{}, err
	}
	return st, nil
}

func (s *Store) Current() models.RuntimeTradingSettings {
	return *s.cur.Load()
}

// OnChange — колбэк на каждую принятую смену настроек.
func (s *Store) OnChange(fn func(old, cur models.RuntimeTradingSettings)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Update применяет fn к копии текущих настроек. Невалидный результат отклоняется целиком.
func (s *Store) Update(fn func(st *models.RuntimeTradingSettings)) (models.RuntimeTradingSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.Current()
	next := old
	fn(&next)
	if err := next.Validate(); err != nil {
		return old, err
	}
	s.swapLocked(old, next)
	return next, nil
}

func (s *Store) ApplyPreset(name string) (models.RuntimeTradingSettings, error) {
	p, ok := models.Presets[name]
	if !ok {
		return s.Current(), fmt.Errorf("%w: unknown preset %q", models.ErrNotFound, name)
	}
	st, err := s.Update(p.Apply)
	if err == nil {
		logger.Info("[SETTINGS] preset %s applied", p.Name)
	}
	return st, err
}

// Watch включает перечитывание файла при изменении. Ручные правки через Update
// живут до следующего изменения файла.
func (s *Store) Watch() {
	if s.v.ConfigFileUsed() == "" {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		_ = s.Reload()
	})
	s.v.WatchConfig()
	logger.Info("[SETTINGS] watching %s", s.path)
}

// Reload перечитывает файл. Ошибка оставляет прежние настройки.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.read()
	if err != nil {
		logger.Error("[SETTINGS] reload rejected: %v", err)
		return err
	}
	s.swapLocked(s.Current(), next)
	logger.Info("[SETTINGS] reloaded from %s", s.path)
	return nil
}

func (s *Store) swapLocked(old, next models.RuntimeTradingSettings) {
	s.cur.Store(&next)
	for _, fn := range s.listeners {
		fn(old, next)
	}
}
