package e2e_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/familiar-ai/familiar/internal/engine"
	"github.com/familiar-ai/familiar/internal/event"
	"github.com/familiar-ai/familiar/internal/sidecar"
	"github.com/familiar-ai/familiar/citest/testutil"
	"github.com/familiar-ai/familiar/internal/store"
	"github.com/familiar-ai/familiar/internal/zerostate"
)

var _ = Describe("Session engine against a live backend", func() {
	var (
		bus      *event.Bus
		eng      *engine.Engine
		stateDir string
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = event.NewBus()
		stateDir = GinkgoT().TempDir()
		eng = engine.New(
			sidecar.NewClient(backend.BaseURL()),
			store.New(stateDir),
			bus,
			engine.Config{DisableTypewriter: true},
		)
	})

	AfterEach(func() {
		eng.Cancel()
		bus.Close()
	})

	It("streams a full turn into the transcript with usage accounting", func() {
		backend.ScriptTurn(func(send func(string), prompt string, done <-chan struct{}) {
			send(`{"type":"assistant_text","text":"Hello "}`)
			send(`{"type":"assistant_text","text":"there."}`)
			send(`{"type":"result","usage":{"inputTokens":8,"outputTokens":3},"cost":{"total":0.002,"currency":"USD"}}`)
		})

		Expect(eng.Submit(ctx, "greet me")).To(Succeed())

		Eventually(eng.IsStreaming, 5*time.Second).Should(BeFalse())
		Eventually(eng.Transcript, 5*time.Second).Should(Equal("Hello there."))

		usage := eng.Usage()
		Expect(usage.InputTokens).To(Equal(8))
		Expect(usage.OutputTokens).To(Equal(3))
		Expect(usage.Cost).To(BeNumerically("~", 0.002, 1e-9))
		Expect(backend.Prompts()).To(ContainElement("greet me"))
	})

	It("completes a permission handshake over HTTP", func() {
		proceed := make(chan struct{})
		backend.ScriptTurn(func(send func(string), prompt string, done <-chan struct{}) {
			send(`{"type":"permission_request","requestId":"req-9","toolName":"Write","path":"/tmp/out.txt","input":{"content":"new file body"}}`)
			select {
			case <-proceed:
				send(`{"type":"permission_resolution","requestId":"req-9","decision":"allow"}`)
				send(`{"type":"assistant_text","text":"Wrote the file."}`)
				send(`{"type":"result"}`)
			case <-done:
			}
		})

		requests := make(chan event.PermissionData, 1)
		bus.Subscribe(event.PermissionRequested, func(e event.Event) {
			requests <- e.Data.(event.PermissionData)
		})

		Expect(eng.Submit(ctx, "write the file")).To(Succeed())

		var data event.PermissionData
		Eventually(requests, 5*time.Second).Should(Receive(&data))
		Expect(data.Request.ID).To(Equal("req-9"))
		Expect(data.Request.Preview).To(Equal("new file body"))

		Expect(eng.RespondToPermission(ctx, data.Request, sidecar.DecisionAllow, true)).To(Succeed())

		var sent testutil.Approval
		Eventually(backend.Approvals(), 5*time.Second).Should(Receive(&sent))
		Expect(sent.RequestID).To(Equal("req-9"))
		Expect(sent.Decision).To(Equal("allow"))
		Expect(sent.Remember).To(BeTrue())
		close(proceed)

		Eventually(eng.IsStreaming, 5*time.Second).Should(BeFalse())
		Eventually(eng.IsProcessingPermission, 5*time.Second).Should(BeFalse())
		Expect(eng.Transcript()).To(Equal("Wrote the file."))
		Expect(eng.ErrorMessage()).To(BeEmpty())
	})

	It("archives an idle session to disk and resumes it", func() {
		backend.ScriptTurn(func(send func(string), prompt string, done <-chan struct{}) {
			send(`{"type":"assistant_text","text":"old conversation"}`)
			send(`{"type":"result","usage":{"inputTokens":2,"outputTokens":2}}`)
		})

		Expect(eng.Submit(ctx, "remember this")).To(Succeed())
		Eventually(eng.IsStreaming, 5*time.Second).Should(BeFalse())
		Eventually(eng.Transcript, 5*time.Second).Should(Equal("old conversation"))

		// Nothing archives while the session is fresh.
		Expect(eng.EvaluateInactivityReset()).To(BeFalse())

		shortIdle := engine.New(
			sidecar.NewClient(backend.BaseURL()),
			store.New(stateDir),
			bus,
			engine.Config{DisableTypewriter: true, InactivityThreshold: time.Nanosecond},
		)
		Expect(shortIdle.Submit(ctx, "remember this")).To(Succeed())
		Eventually(shortIdle.IsStreaming, 5*time.Second).Should(BeFalse())
		Eventually(shortIdle.Transcript, 5*time.Second).Should(Equal("old conversation"))

		time.Sleep(10 * time.Millisecond)
		Expect(shortIdle.EvaluateInactivityReset()).To(BeTrue())
		Expect(shortIdle.Transcript()).To(BeEmpty())
		Expect(shortIdle.Usage().InputTokens).To(Equal(2), "lifetime spend survives the archive")

		snapshotPath := filepath.Join(stateDir, "previous-session.json")
		Expect(snapshotPath).To(BeAnExistingFile())

		Expect(shortIdle.ResumePrevious()).To(BeTrue())
		Expect(shortIdle.Transcript()).To(Equal("old conversation"))

		_, err := os.Stat(snapshotPath)
		Expect(os.IsNotExist(err)).To(BeTrue(), "persisted copy cleared on resume")
	})

	It("serves zero-state suggestions through the single-flight cache", func() {
		backend.SetSuggestions([]string{"Summarize my notes", "Clean up downloads"})
		cache := zerostate.NewCache(sidecar.NewClient(backend.BaseURL()).FetchSuggestions)

		Expect(cache.Get(ctx)).To(Equal([]string{"Summarize my notes", "Clean up downloads"}))

		// A later backend change is not observed; the cache holds.
		backend.SetSuggestions([]string{"different"})
		Expect(cache.Get(ctx)).To(Equal([]string{"Summarize my notes", "Clean up downloads"}))
	})
})
