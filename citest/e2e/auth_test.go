package e2e_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/familiar-ai/familiar/internal/auth"
	"github.com/familiar-ai/familiar/internal/sidecar"
	"github.com/familiar-ai/familiar/pkg/types"
)

var _ = Describe("Login flow against a live backend", func() {
	var (
		opened []string
		mu     sync.Mutex
		coord  *auth.Coordinator
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		opened = nil
		coord = auth.NewCoordinator(
			sidecar.NewClient(backend.BaseURL()),
			auth.WithOpener(func(url string) error {
				mu.Lock()
				opened = append(opened, url)
				mu.Unlock()
				return nil
			}),
			auth.WithPolling(20, 5*time.Millisecond),
		)
	})

	It("opens the login URL and polls until the account is active", func() {
		backend.SetAuthPending(3)

		state, err := coord.StartLogin(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Active).To(BeFalse())
		Expect(state.IsPending()).To(BeTrue())

		Expect(coord.OpenLoginURL(state)).To(BeTrue())
		mu.Lock()
		Expect(opened).To(Equal([]string{"https://claude.ai/login/test"}))
		mu.Unlock()

		// A second call is a no-op until the next login attempt.
		Expect(coord.OpenLoginURL(state)).To(BeFalse())

		final, err := coord.PollForCompletion(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Active).To(BeTrue())
		Expect(coord.InProgress()).To(BeFalse())
	})

	It("reports every intermediate status while polling", func() {
		backend.SetAuthPending(2)

		var seen []types.AuthState
		coord = auth.NewCoordinator(
			sidecar.NewClient(backend.BaseURL()),
			auth.WithPolling(20, 5*time.Millisecond),
			auth.WithStatusHandler(func(s types.AuthState) {
				mu.Lock()
				seen = append(seen, s)
				mu.Unlock()
			}),
		)

		final, err := coord.PollForCompletion(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Active).To(BeTrue())

		mu.Lock()
		defer mu.Unlock()
		Expect(len(seen)).To(BeNumerically(">=", 3))
		Expect(seen[0].Active).To(BeFalse())
		Expect(seen[len(seen)-1].Active).To(BeTrue())
	})

	It("signs out and reports an inactive account", func() {
		state, err := coord.SignOut(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Active).To(BeFalse())
	})
})
