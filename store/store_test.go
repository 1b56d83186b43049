package store_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mifi-dashboard/monitor/gateway"
	"github.com/mifi-dashboard/monitor/store"
)

func snapshot(n int64) gateway.Metrics {
	m := gateway.DefaultMetrics()
	m.IsConnected = true
	m.LastUpdate = n
	return m
}

var _ = Describe("Store", func() {
	var s *store.Store

	BeforeEach(func() {
		s = store.New(0, nil)
		DeferCleanup(s.Close)
	})

	It("should start with the default snapshot", func() {
		Expect(s.Current()).To(Equal(gateway.DefaultMetrics()))
	})

	It("should return the last update", func() {
		s.Update(snapshot(1))
		s.Update(snapshot(2))
		Expect(s.Current().LastUpdate).To(BeEquivalentTo(2))
	})

	It("should deliver the current value first, then every update in order", func() {
		s.Update(snapshot(1))
		sub := s.Subscribe()
		defer sub.Close()

		go func() {
			defer GinkgoRecover()
			for i := int64(2); i <= 40; i++ {
				s.Update(snapshot(i))
			}
		}()

		for i := int64(1); i <= 40; i++ {
			var m gateway.Metrics
			Eventually(sub.Updates()).Should(Receive(&m))
			Expect(m.LastUpdate).To(Equal(i))
		}
		Consistently(sub.Updates()).ShouldNot(Receive())
	})

	It("should fan out to several subscribers", func() {
		subs := []*store.Subscription{s.Subscribe(), s.Subscribe(), s.Subscribe()}
		s.Update(snapshot(7))
		for _, sub := range subs {
			var first, second gateway.Metrics
			Eventually(sub.Updates()).Should(Receive(&first))
			Expect(first).To(Equal(gateway.DefaultMetrics()))
			Eventually(sub.Updates()).Should(Receive(&second))
			Expect(second.LastUpdate).To(BeEquivalentTo(7))
			sub.Close()
		}
	})

	It("should close the channel when the subscription is closed", func() {
		sub := s.Subscribe()
		sub.Close()
		sub.Close()
		Eventually(sub.Updates()).Should(BeClosed())
		s.Update(snapshot(3))
		Expect(s.Current().LastUpdate).To(BeEquivalentTo(3))
	})

	It("should not block writers on an abandoned subscriber once it is closed", func() {
		sub := s.Subscribe()
		for i := int64(0); i < 10; i++ {
			s.Update(snapshot(i))
		}
		sub.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := int64(0); i < 200; i++ {
				s.Update(snapshot(i))
			}
		}()
		Eventually(done).Should(BeClosed())
	})

	It("should serve Current while a stalled subscriber holds up writers", func() {
		stalled := s.Subscribe()
		DeferCleanup(stalled.Close)

		go func() {
			for i := int64(1); i <= 40; i++ {
				s.Update(snapshot(i))
			}
		}()

		current := func() int64 {
			got := make(chan int64, 1)
			go func() { got <- s.Current().LastUpdate }()
			select {
			case v := <-got:
				return v
			case <-time.After(100 * time.Millisecond):
				return -1
			}
		}
		Eventually(current).Should(BeNumerically(">=", 16))
		Consistently(current, 200*time.Millisecond).Should(And(BeNumerically(">=", 16), BeNumerically("<", 40)))
	})

	It("should tolerate concurrent writers", func() {
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					m := snapshot(int64(w*1000 + i))
					m.Operator = fmt.Sprintf("writer-%d", w)
					s.Update(m)
				}
			}(w)
		}
		wg.Wait()
		Expect(s.Current().Operator).To(HavePrefix("writer-"))
	})

	It("should end subscriptions on Close", func() {
		sub := s.Subscribe()
		Eventually(sub.Updates()).Should(Receive())
		s.Close()
		Eventually(sub.Updates()).Should(BeClosed())

		late := s.Subscribe()
		Eventually(late.Updates()).Should(BeClosed())
		late.Close()
	})
})
