package repositories

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"

	"golang.org/x/sync/singleflight"
)

// ClassificationCache é o subconjunto do cliente Redis usado pelo cache de
// classificação (implementado por infra/redis.RedisClient).
type ClassificationCache interface {
	GetKey(ctx context.Context, key string) (string, bool, error)
	SetWithRegistry(ctx context.Context, cacheKey string, cacheValue string, registryKeys []string) error
	GetMultipleSetMembers(ctx context.Context, registryKeys []string) (map[string][]string, error)
	InvalidateEntity(ctx context.Context, keys []string) error
}

// fillTimeout limita a consulta compartilhada, que não herda o cancelamento
// de nenhum chamador.
const fillTimeout = 10 * time.Second

// CachedGraphRepository guarda o resultado de ClassifyCandidates no Redis.
// Cada chave de cache é registrada em três registries (o sujeito, o tipo dos
// candidatos e o tipo do sujeito); toda escrita bem sucedida invalida os
// registries afetados antes de retornar.
type CachedGraphRepository struct {
	GraphStore

	cache  ClassificationCache
	group  singleflight.Group
	logger *slog.Logger

	// generation avança a cada escrita confirmada. Um fill só grava no cache
	// se nenhuma escrita aconteceu desde o início da sua consulta; fillMu
	// ordena essa checagem contra o avanço da escrita.
	fillMu     sync.RWMutex
	generation uint64
}

func NewCachedGraphRepository(next GraphStore, cache ClassificationCache, logger *slog.Logger) *CachedGraphRepository {
	return &CachedGraphRepository{
		GraphStore: next,
		cache:      cache,
		logger:     logger,
	}
}

func (r *CachedGraphRepository) currentGeneration() uint64 {
	r.fillMu.RLock()
	defer r.fillMu.RUnlock()
	return r.generation
}

// bumpGeneration roda depois do commit e antes da invalidação.
func (r *CachedGraphRepository) bumpGeneration() {
	r.fillMu.Lock()
	r.generation++
	r.fillMu.Unlock()
}

func registryEntity(ref entities.NodeRef) string {
	return fmt.Sprintf("registry:entity:%s", ref)
}

func registryCandidates(kind entities.Kind) string {
	return fmt.Sprintf("registry:candidates:%s", kind)
}

func registrySubjects(kind entities.Kind) string {
	return fmt.Sprintf("registry:subjects:%s", kind)
}

func (r *CachedGraphRepository) generateCacheKey(subject entities.NodeRef, candidates entities.Kind) string {
	keyData := fmt.Sprintf("classify:%s:candidates:%s", subject, candidates)

	// Hash para chave mais limpa e consistente
	hash := md5.Sum([]byte(keyData))
	return fmt.Sprintf("graph:classification:%x", hash)
}

func (r *CachedGraphRepository) ClassifyCandidates(ctx context.Context, subject entities.NodeRef, candidates entities.Kind) ([]domain.CandidateRow, error) {
	cacheKey := r.generateCacheKey(subject, candidates)

	cached, found, err := r.getFromCache(ctx, cacheKey)
	if err != nil {
		// erro de cache não derruba a leitura
		r.logger.WarnContext(ctx, "classification cache read failed", "key", cacheKey, "error", err)
	}
	if found {
		r.logger.DebugContext(ctx, "classification cache hit", "key", cacheKey, "subject", subject.String())
		return cached, nil
	}

	// Misses concorrentes para o mesmo sujeito compartilham uma única consulta;
	// cada chamador espera só enquanto o próprio ctx estiver vivo.
	flight := r.group.DoChan(cacheKey, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		generation := r.currentGeneration()
		rows, err := r.GraphStore.ClassifyCandidates(fillCtx, subject, candidates)
		if err != nil {
			return nil, err
		}
		r.setInCache(fillCtx, generation, cacheKey, subject, candidates, rows)
		return rows, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-flight:
		if result.Err != nil {
			return nil, result.Err
		}
		return slices.Clone(result.Val.([]domain.CandidateRow)), nil
	}
}

func (r *CachedGraphRepository) getFromCache(ctx context.Context, cacheKey string) ([]domain.CandidateRow, bool, error) {
	cachedJSON, found, err := r.cache.GetKey(ctx, cacheKey)
	if !found || err != nil {
		return nil, false, err
	}

	var rows []domain.CandidateRow
	if err := json.Unmarshal([]byte(cachedJSON), &rows); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return rows, true, nil
}

// setInCache descarta o resultado se uma escrita aconteceu depois de generation.
func (r *CachedGraphRepository) setInCache(ctx context.Context, generation uint64, cacheKey string, subject entities.NodeRef, candidates entities.Kind, rows []domain.CandidateRow) {
	dataJSON, err := json.Marshal(rows)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to marshal classification", "key", cacheKey, "error", err)
		return
	}

	r.fillMu.RLock()
	defer r.fillMu.RUnlock()
	if r.generation != generation {
		r.logger.DebugContext(ctx, "skipping stale classification fill", "key", cacheKey)
		return
	}

	registryKeys := []string{
		registryEntity(subject),
		registryCandidates(candidates),
		registrySubjects(subject.Kind),
	}
	if err := r.cache.SetWithRegistry(ctx, cacheKey, string(dataJSON), registryKeys); err != nil {
		r.logger.WarnContext(ctx, "failed to set classification cache", "key", cacheKey, "error", err)
	}
}

func (r *CachedGraphRepository) InsertNode(ctx context.Context, kind entities.Kind, props map[string]string) (entities.Entity, error) {
	entity, err := r.GraphStore.InsertNode(ctx, kind, props)
	if err != nil {
		return entity, err
	}
	r.invalidate(ctx, registryCandidates(kind))
	return entity, nil
}

func (r *CachedGraphRepository) MergeNodeProperties(ctx context.Context, ref entities.NodeRef, props map[string]string) (entities.Entity, error) {
	entity, err := r.GraphStore.MergeNodeProperties(ctx, ref, props)
	if err != nil {
		return entity, err
	}
	// A classificação só carrega chaves; só a troca de chave a afeta.
	if entity.Key != ref.Key {
		r.invalidate(ctx, registryCandidates(ref.Kind), registryEntity(ref))
	}
	return entity, nil
}

func (r *CachedGraphRepository) DeleteNode(ctx context.Context, ref entities.NodeRef) error {
	if err := r.GraphStore.DeleteNode(ctx, ref); err != nil {
		return err
	}
	r.invalidate(ctx, registryCandidates(ref.Kind), registryEntity(ref))
	return nil
}

func (r *CachedGraphRepository) DeleteAllNodes(ctx context.Context, kind entities.Kind) (int64, error) {
	deleted, err := r.GraphStore.DeleteAllNodes(ctx, kind)
	if err != nil {
		return deleted, err
	}
	r.invalidate(ctx, registryCandidates(kind), registrySubjects(kind))
	return deleted, nil
}

func (r *CachedGraphRepository) ApplyEdgeChange(ctx context.Context, change entities.EdgeChange) error {
	if err := r.GraphStore.ApplyEdgeChange(ctx, change); err != nil {
		return err
	}
	r.invalidate(ctx, registryEntity(change.From), registryEntity(change.To))
	return nil
}

// invalidate remove os registries e todas as chaves registradas neles.
// Falhas ficam no log: a escrita já foi confirmada e o TTL limita a janela.
func (r *CachedGraphRepository) invalidate(ctx context.Context, registryKeys ...string) {
	r.bumpGeneration()
	if err := r.InvalidateByRegistries(ctx, registryKeys); err != nil {
		r.logger.ErrorContext(ctx, "classification cache invalidation failed", "registries", registryKeys, "error", err)
	}
}

func (r *CachedGraphRepository) InvalidateByRegistries(ctx context.Context, registryKeys []string) error {
	if len(registryKeys) == 0 {
		return nil
	}

	registryResults, err := r.cache.GetMultipleSetMembers(ctx, registryKeys)
	if err != nil {
		return fmt.Errorf("failed to get registry data: %w", err)
	}

	allKeysToDelete := make(map[string]bool)
	for registryKey, relatedKeys := range registryResults {
		allKeysToDelete[registryKey] = true
		for _, relatedKey := range relatedKeys {
			allKeysToDelete[relatedKey] = true
		}
	}

	keysToDelete := make([]string, 0, len(allKeysToDelete))
	for key := range allKeysToDelete {
		keysToDelete = append(keysToDelete, key)
	}
	slices.Sort(keysToDelete)

	if len(keysToDelete) == 0 {
		return nil
	}

	r.logger.DebugContext(ctx, "invalidating classification cache", "keys", len(keysToDelete), "registries", len(registryKeys))
	return r.cache.InvalidateEntity(ctx, keysToDelete)
}
