package vm

import (
	"reflect"

	"github.com/corestack/govm/internal/value"
)

// selectClause is one comm clause OpSelectRecv/OpSelectSend registered
// ahead of the OpSelect that consumes them; default
// clauses register nothing, so pending only ever holds the real comm
// clauses, each tagged with its true source-order clauseIdx so OpSelect
// can map a fired reflect.SelectCase back to the right body.
type selectClause struct {
	clauseIdx int
	isSend    bool
	ch        *value.ChannelData
	sendVal   value.Value
}

func (vm *VM) selectRecv(fr *Frame, clauseIdx int, ch value.Value) {
	ch = ch.Unwrap()
	cd, _ := ch.Obj.(*value.ChannelData)
	fr.pending = append(fr.pending, selectClause{clauseIdx: clauseIdx, ch: cd})
}

func (vm *VM) selectSend(fr *Frame, clauseIdx int, ch, v value.Value) {
	ch = ch.Unwrap()
	cd, _ := ch.Obj.(*value.ChannelData)
	fr.pending = append(fr.pending, selectClause{clauseIdx: clauseIdx, isSend: true, ch: cd, sendVal: v})
}

// doSelect implements OpSelect via reflect.Select: builds one
// reflect.SelectCase per registered clause (a nil channel value becomes
// a permanently-blocking case, the same way Go's own select treats a
// nil channel operand), plus a default case when hasDefault, then maps
// the chosen case back to the clause's true source-order index — the
// one index in [0,numClauses) absent from pending is the fired
// default.
func (vm *VM) doSelect(fr *Frame, numClauses int, hasDefault bool) (idx int, recvVal value.Value, recvOk bool) {
	clauses := fr.pending
	fr.pending = nil

	cases := make([]reflect.SelectCase, 0, len(clauses)+1)
	for _, c := range clauses {
		if c.isSend {
			var chVal reflect.Value
			if c.ch == nil {
				chVal = reflect.ValueOf((chan value.Value)(nil))
			} else {
				chVal = reflect.ValueOf(c.ch.Ch)
			}
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectSend, Chan: chVal, Send: reflect.ValueOf(c.sendVal)})
			continue
		}
		var chVal reflect.Value
		if c.ch == nil {
			chVal = reflect.ValueOf((chan value.Value)(nil))
		} else {
			chVal = reflect.ValueOf(c.ch.Ch)
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: chVal})
	}
	defaultPos := -1
	if hasDefault {
		defaultPos = len(cases)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectDefault})
	}

	chosen, recv, recvOK := reflect.Select(cases)
	if hasDefault && chosen == defaultPos {
		seen := make(map[int]bool, len(clauses))
		for _, c := range clauses {
			seen[c.clauseIdx] = true
		}
		for i := 0; i < numClauses; i++ {
			if !seen[i] {
				return i, value.Value{}, false
			}
		}
		panic("ICE: vm: select default fired with no unregistered clause index")
	}
	fired := clauses[chosen]
	if fired.isSend {
		return fired.clauseIdx, value.Value{}, false
	}
	if !recvOK {
		return fired.clauseIdx, value.Value{}, false
	}
	return fired.clauseIdx, recv.Interface().(value.Value), true
}
