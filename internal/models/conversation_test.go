package models_test

import (
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
)

var _ = Describe("Conversation", func() {
	var (
		conv *models.Conversation
		now  time.Time
	)

	BeforeEach(func() {
		now = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
		conv = models.NewConversation(func() time.Time { return now })
	})

	Describe("AppendUser and AppendPlaceholder", func() {
		It("appends in chronological order", func() {
			user := conv.AppendUser("Hola")
			placeholder := conv.AppendPlaceholder()

			msgs := conv.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0]).To(Equal(user))
			Expect(msgs[1]).To(Equal(placeholder))

			Expect(user.Role).To(Equal(models.RoleUser))
			Expect(user.Content).To(Equal("Hola"))
			Expect(user.Timestamp).To(Equal(now))
			Expect(placeholder.Role).To(Equal(models.RoleAssistant))
			Expect(placeholder.Content).To(BeEmpty())
		})

		It("gives every message its own ID", func() {
			a := conv.AppendUser("a")
			b := conv.AppendPlaceholder()
			Expect(a.ID).NotTo(BeEmpty())
			Expect(a.ID).NotTo(Equal(b.ID))
		})
	})

	Describe("AppendFragment", func() {
		It("accumulates fragments in place", func() {
			conv.AppendUser("hi")
			p := conv.AppendPlaceholder()

			_, ok := conv.AppendFragment(p.ID, "Hel")
			Expect(ok).To(BeTrue())
			m, ok := conv.AppendFragment(p.ID, "lo")
			Expect(ok).To(BeTrue())
			Expect(m.Content).To(Equal("Hello"))

			Expect(conv.Len()).To(Equal(2))
			last, _ := conv.Last()
			Expect(last.ID).To(Equal(p.ID))
			Expect(last.Content).To(Equal("Hello"))
		})

		It("ignores fragments when the last message is not the placeholder", func() {
			conv.AppendUser("hi")
			_, ok := conv.AppendFragment("missing", "x")
			Expect(ok).To(BeFalse())

			msgs := conv.Messages()
			Expect(msgs[0].Content).To(Equal("hi"))
		})

		It("ignores fragments after the conversation was cleared", func() {
			conv.AppendUser("hi")
			p := conv.AppendPlaceholder()
			conv.Clear()

			_, ok := conv.AppendFragment(p.ID, "late")
			Expect(ok).To(BeFalse())
			Expect(conv.Len()).To(BeZero())
		})
	})

	Describe("FailPlaceholder", func() {
		It("fills an empty placeholder", func() {
			conv.AppendUser("hi")
			p := conv.AppendPlaceholder()

			m, ok := conv.FailPlaceholder(p.ID, "error")
			Expect(ok).To(BeTrue())
			Expect(m.Content).To(Equal("error"))
		})

		It("keeps partial output", func() {
			conv.AppendUser("hi")
			p := conv.AppendPlaceholder()
			conv.AppendFragment(p.ID, "partial")

			_, ok := conv.FailPlaceholder(p.ID, "error")
			Expect(ok).To(BeFalse())
			last, _ := conv.Last()
			Expect(last.Content).To(Equal("partial"))
		})
	})

	Describe("History", func() {
		It("reduces messages to role and content", func() {
			conv.AppendUser("one")
			p := conv.AppendPlaceholder()
			conv.AppendFragment(p.ID, "two")

			Expect(conv.History()).To(Equal([]models.HistoryMessage{
				{Role: models.RoleUser, Content: "one"},
				{Role: models.RoleAssistant, Content: "two"},
			}))
		})
	})

	Describe("Clear", func() {
		It("resets to empty regardless of prior state", func() {
			conv.AppendUser("one")
			conv.AppendPlaceholder()
			conv.Clear()

			Expect(conv.Len()).To(BeZero())
			Expect(conv.Messages()).To(BeEmpty())
			_, ok := conv.Last()
			Expect(ok).To(BeFalse())
		})

		It("is a no-op on an empty conversation", func() {
			conv.Clear()
			Expect(conv.Len()).To(BeZero())
		})
	})

	It("is safe for concurrent readers while fragments stream", func() {
		conv.AppendUser("hi")
		p := conv.AppendPlaceholder()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				conv.AppendFragment(p.ID, "a")
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_ = conv.Messages()
			}
		}()
		wg.Wait()

		last, _ := conv.Last()
		Expect(last.Content).To(Equal(strings.Repeat("a", 100)))
	})
})

var _ = Describe("ChatRequest", func() {
	It("appends the new message after the history", func() {
		req := models.ChatRequest{
			Message: "next",
			Model:   "llama3.2",
			History: []models.HistoryMessage{{Role: models.RoleUser, Content: "prev"}},
		}
		Expect(req.Conversation()).To(Equal([]models.HistoryMessage{
			{Role: models.RoleUser, Content: "prev"},
			{Role: models.RoleUser, Content: "next"},
		}))
	})
})

var _ = Describe("RenderMessage", func() {
	It("renders assistant markdown", func() {
		out, err := models.RenderMessage(models.Message{Role: models.RoleAssistant, Content: "**bold**"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(ContainSubstring("<strong>bold</strong>"))
	})

	It("shows the typing placeholder for empty assistant content", func() {
		out, err := models.RenderMessage(models.Message{Role: models.RoleAssistant})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(ContainSubstring(models.TypingPlaceholder))
	})

	It("drops raw HTML from model output", func() {
		out, err := models.RenderMarkdown("<script>alert(1)</script>")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).NotTo(ContainSubstring("<script>"))
	})

	It("escapes user text", func() {
		out, err := models.RenderMessage(models.Message{Role: models.RoleUser, Content: "<b>x</b>"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("<p>&lt;b&gt;x&lt;/b&gt;</p>"))
	})
})

var _ = Describe("Message", func() {
	It("formats the clock as hour and minute", func() {
		m := models.Message{Timestamp: time.Date(2024, 1, 1, 7, 5, 0, 0, time.UTC)}
		Expect(m.Clock()).To(Equal("07:05"))
	})

	It("knows its roles", func() {
		Expect(models.RoleUser.Valid()).To(BeTrue())
		Expect(models.Role("system").Valid()).To(BeFalse())
	})
})
