// Package factory 按 key 注册和查找构造函数
package factory

import (
	"errors"
	"sync"
)

var ErrFactoryExists = errors.New("factory already exists")

func New[K comparable, F any]() *Manager[K, F] {
	return &Manager[K, F]{
		factories: make(map[K]F),
	}
}

type Manager[K comparable, F any] struct {
	mu        sync.RWMutex
	factories map[K]F // key:工厂名  value：构造函数
}

// Register 注册一个工厂函数，重复注册返回 ErrFactoryExists
func (f *Manager[K, F]) Register(key K, factory F) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.factories[key]; ok {
		return ErrFactoryExists
	}
	f.factories[key] = factory
	return nil
}

// MustRegister 注册失败直接 panic，给 init 阶段的内置注册用
func (f *Manager[K, F]) MustRegister(key K, factory F) {
	if err := f.Register(key, factory); err != nil {
		panic(err)
	}
}

// Unregister 注销一个工厂函数
func (f *Manager[K, F]) Unregister(key K) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.factories, key)
}

// Get 获取一个工厂函数
func (f *Manager[K, F]) Get(key K) (F, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[key]
	return factory, ok
}

// Keys 列出所有已注册的 key，顺序不定
func (f *Manager[K, F]) Keys() []K {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]K, 0, len(f.factories))
	for key := range f.factories {
		keys = append(keys, key)
	}
	return keys
}
