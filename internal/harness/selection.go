package harness

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Selection はワーカーが予約するチケットの選び方
type Selection string

const (
	// SelectRandom は全チケットから無作為に選ぶ。売り切れたチケットも選ばれ得る
	SelectRandom Selection = "random"
	// SelectRoundRobin は共有カーソルから連続したチケットを選ぶ
	SelectRoundRobin Selection = "round_robin"
	// SelectClaim は各チケットを1回だけ払い出す。払い出し切るとワーカーは終了する
	SelectClaim Selection = "claim"
)

func ParseSelection(s string) (Selection, error) {
	switch Selection(strings.ToLower(s)) {
	case SelectRandom, "":
		return SelectRandom, nil
	case SelectRoundRobin:
		return SelectRoundRobin, nil
	case SelectClaim:
		return SelectClaim, nil
	}
	return "", fmt.Errorf("不明な選択方式です: %q", s)
}

type picker interface {
	// pick は最大 n 枚のシリアル番号を返す。空なら払い出すものがない
	pick(rng *rand.Rand, n int) []string
}

func newPicker(sel Selection, serials []string, rng *rand.Rand) picker {
	pool := append([]string(nil), serials...)
	switch sel {
	case SelectRoundRobin:
		return &roundRobinPicker{serials: pool}
	case SelectClaim:
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		return &claimPicker{queue: pool}
	default:
		return &randomPicker{serials: pool}
	}
}

type randomPicker struct {
	serials []string
}

func (p *randomPicker) pick(rng *rand.Rand, n int) []string {
	if n > len(p.serials) {
		n = len(p.serials)
	}
	out := make([]string, 0, n)
	for _, i := range rng.Perm(len(p.serials))[:n] {
		out = append(out, p.serials[i])
	}
	return out
}

type roundRobinPicker struct {
	mu      sync.Mutex
	serials []string
	next    int
}

func (p *roundRobinPicker) pick(_ *rand.Rand, n int) []string {
	if n > len(p.serials) {
		n = len(p.serials)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, p.serials[(p.next+i)%len(p.serials)])
	}
	p.next = (p.next + n) % max(len(p.serials), 1)
	return out
}

type claimPicker struct {
	mu    sync.Mutex
	queue []string
}

func (p *claimPicker) pick(_ *rand.Rand, n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.queue) {
		n = len(p.queue)
	}
	out := p.queue[:n:n]
	p.queue = p.queue[n:]
	return out
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
