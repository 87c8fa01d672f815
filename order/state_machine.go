package order

import (
	"fmt"
	"sync"
)

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 订单状态机。只允许向前转换，终态之后拒绝一切变更。
type StateMachine struct {
	transitions map[StateTransition]bool
	mu          sync.RWMutex
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

// initializeTransitions 初始化所有合法的状态转换
func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		// 正常推进路径
		{StatusPending, StatusRouting},
		{StatusRouting, StatusBuilding},
		{StatusBuilding, StatusSubmitted},
		{StatusSubmitted, StatusConfirmed},

		// 任意非终态都可以直接失败
		{StatusPending, StatusFailed},
		{StatusRouting, StatusFailed},
		{StatusBuilding, StatusFailed},
		{StatusSubmitted, StatusFailed},

		// 终态（CONFIRMED, FAILED）不能转换
	}

	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if from == to {
		// 终态重复写入也要拒绝，避免覆盖已定格的记录
		if sm.IsFinalState(from) {
			return fmt.Errorf("order already terminal: %s", from)
		}
		return nil
	}

	transition := StateTransition{From: from, To: to}
	if !sm.transitions[transition] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}

	return nil
}

// AllowedTransitions 返回当前状态所有合法的目标状态
func (sm *StateMachine) AllowedTransitions(current Status) []Status {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	allowed := make([]Status, 0)
	for transition := range sm.transitions {
		if transition.From == current {
			allowed = append(allowed, transition.To)
		}
	}
	return allowed
}

// IsFinalState 判断是否是终态
func (sm *StateMachine) IsFinalState(status Status) bool {
	switch status {
	case StatusConfirmed, StatusFailed:
		return true
	default:
		return false
	}
}

// IsActiveState 判断是否仍在执行管道内
func (sm *StateMachine) IsActiveState(status Status) bool {
	switch status {
	case StatusPending, StatusRouting, StatusBuilding, StatusSubmitted:
		return true
	default:
		return false
	}
}
