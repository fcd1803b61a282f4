package redis_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"discoveryservice/src/helper/env"
	"discoveryservice/src/infra/redis"
)

var _ = Describe("RedisClient", func() {
	var (
		ctx         context.Context
		redisClient *redis.RedisClient
		prefix      string
	)

	BeforeEach(func() {
		hosts := env.GetString("TEST_REDIS_HOSTS", "")
		if hosts == "" {
			Skip("TEST_REDIS_HOSTS not set")
		}

		ctx = context.Background()
		redisClient = redis.NewRedisClient(hosts, 5, 30*time.Second)
		DeferCleanup(redisClient.Close)
		Expect(redisClient.HealthCheck(ctx)).To(Succeed())

		// chaves isoladas por execução
		prefix = "test:" + uuid.NewString() + ":"
	})

	When("the key was never set", func() {
		It("reports a miss without error", func() {
			// ACT
			value, found, err := redisClient.GetKey(ctx, prefix+"missing")

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(value).To(BeEmpty())
		})
	})

	When("a key is set with registries", func() {
		var cacheKey, registryA, registryB string

		BeforeEach(func() {
			// ARRANGE
			cacheKey = prefix + "classification"
			registryA = prefix + "registry:a"
			registryB = prefix + "registry:b"
			Expect(redisClient.SetWithRegistry(ctx, cacheKey, `[{"key":"bob"}]`, []string{registryA, registryB})).To(Succeed())
		})

		It("returns the stored value", func() {
			// ACT
			value, found, err := redisClient.GetKey(ctx, cacheKey)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(value).To(Equal(`[{"key":"bob"}]`))
		})

		It("lists the key under every registry and an empty list for unknown ones", func() {
			// ACT
			members, err := redisClient.GetMultipleSetMembers(ctx, []string{registryA, registryB, prefix + "registry:none"})

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(HaveKeyWithValue(registryA, []string{cacheKey}))
			Expect(members).To(HaveKeyWithValue(registryB, []string{cacheKey}))
			Expect(members[prefix+"registry:none"]).To(BeEmpty())
		})

		It("drops the key once invalidated", func() {
			// ACT
			err := redisClient.InvalidateEntity(ctx, []string{cacheKey, registryA})

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			_, found, err := redisClient.GetKey(ctx, cacheKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			members, err := redisClient.GetMultipleSetMembers(ctx, []string{registryA})
			Expect(err).NotTo(HaveOccurred())
			Expect(members[registryA]).To(BeEmpty())
		})
	})
})
