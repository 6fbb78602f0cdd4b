package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultServer 凭证默认关联的服务标识
const DefaultServer = "djemotionanalyzer.com"

// ErrNotFound 未保存凭证
var ErrNotFound = errors.New("credential not found")

// Store 凭证存储能力：按服务标识保存一个不透明的字符串
type Store interface {
	Get(server string) (string, error)
	Set(server, secret string) error
	Clear(server string) error
}

// MemoryStore 内存凭证存储
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore 创建内存凭证存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

// Get 读取凭证
func (s *MemoryStore) Get(server string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[server]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

// Set 保存凭证
func (s *MemoryStore) Set(server, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[server] = secret
	return nil
}

// Clear 删除凭证
func (s *MemoryStore) Clear(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, server)
	return nil
}

// FileStore 以JSON文件保存凭证，权限0600
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore 创建文件凭证存储
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path 文件路径
func (s *FileStore) Path() string {
	return s.path
}

// Get 读取凭证
func (s *FileStore) Get(server string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return "", err
	}
	secret, ok := secrets[server]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

// Set 保存凭证
func (s *FileStore) Set(server, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}
	secrets[server] = secret
	return s.save(secrets)
}

// Clear 删除凭证，不存在时不报错
func (s *FileStore) Clear(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := secrets[server]; !ok {
		return nil
	}
	delete(secrets, server)
	return s.save(secrets)
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	secrets := make(map[string]string)
	if len(data) == 0 {
		return secrets, nil
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", s.path, err)
	}
	return secrets, nil
}

// save 先写临时文件再重命名
func (s *FileStore) save(secrets map[string]string) error {
	data, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// TokenSource 把凭证存储适配为分类客户端的令牌来源；无凭证时返回空令牌
type TokenSource struct {
	Store  Store
	Server string
}

// Token 读取当前令牌
func (ts TokenSource) Token(_ context.Context) (string, error) {
	secret, err := ts.Store.Get(ts.Server)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return secret, err
}
