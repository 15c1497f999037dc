package staking

import "math/big"

// The relay surface is the two-phase handoff between on-chain intents and the
// off-chain keeper: users record delegation or undelegation intents through
// Stake and Unstake, the keeper withdraws funds and executes them against the
// validator set, then confirms the result back so total_delegated tracks the
// funds physically at work.

// PendingDelegations returns the merged delegation intent queue.
func (e *Engine) PendingDelegations() ([]PendingDelegation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var queue []PendingDelegation
	if _, err := e.state.KVGet(keyPendingDelegations, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// PendingUndelegations returns the merged undelegation intent queue.
func (e *Engine) PendingUndelegations() ([]PendingUndelegation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var queue []PendingUndelegation
	if _, err := e.state.KVGet(keyPendingUndelegations, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// WithdrawForDelegation pays the keeper up to the validator's pending
// delegation amount so it can place the funds with that validator.
func (e *Engine) WithdrawForDelegation(caller, validator string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.base == nil {
		return errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if normalize(caller) != pool.Keeper {
		return ErrUnauthorized
	}
	validator = normalize(validator)
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	queue, err := e.PendingDelegations()
	if err != nil {
		return err
	}
	pending := big.NewInt(0)
	for _, entry := range queue {
		if entry.Validator == validator {
			pending = entry.Amount
			break
		}
	}
	if amount.Cmp(pending) > 0 {
		return ErrPendingAmountExceeded
	}
	return e.base.Transfer(moduleAddress, pool.Keeper, amount)
}

// ConfirmDelegation consumes the pending delegation entry for a validator and
// raises total_delegated by the executed amount.
func (e *Engine) ConfirmDelegation(caller, validator string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if normalize(caller) != pool.Keeper {
		return ErrUnauthorized
	}
	validator = normalize(validator)
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	var queue []PendingDelegation
	if _, err := e.state.KVGet(keyPendingDelegations, &queue); err != nil {
		return err
	}
	consumed := false
	for i := range queue {
		if queue[i].Validator != validator {
			continue
		}
		if amount.Cmp(queue[i].Amount) > 0 {
			return ErrPendingAmountExceeded
		}
		if amount.Cmp(queue[i].Amount) == 0 {
			queue = append(queue[:i], queue[i+1:]...)
		} else {
			queue[i].Amount = new(big.Int).Sub(queue[i].Amount, amount)
		}
		consumed = true
		break
	}
	if !consumed {
		return ErrPendingAmountExceeded
	}
	if err := e.state.KVPut(keyPendingDelegations, queue); err != nil {
		return err
	}
	pool.TotalDelegated = new(big.Int).Add(pool.TotalDelegated, amount)
	if err := e.state.KVPut(keyPool, pool); err != nil {
		return err
	}
	e.emit(NewDelegationProcessedEvent(validator, amount))
	return nil
}

// ConfirmUndelegation consumes the pending undelegation entry for a validator
// and lowers total_delegated by the executed amount.
func (e *Engine) ConfirmUndelegation(caller, validator string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if normalize(caller) != pool.Keeper {
		return ErrUnauthorized
	}
	validator = normalize(validator)
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	var queue []PendingUndelegation
	if _, err := e.state.KVGet(keyPendingUndelegations, &queue); err != nil {
		return err
	}
	consumed := false
	for i := range queue {
		if queue[i].Validator != validator {
			continue
		}
		if amount.Cmp(queue[i].Amount) > 0 {
			return ErrPendingAmountExceeded
		}
		if amount.Cmp(queue[i].Amount) == 0 {
			queue = append(queue[:i], queue[i+1:]...)
		} else {
			queue[i].Amount = new(big.Int).Sub(queue[i].Amount, amount)
		}
		consumed = true
		break
	}
	if !consumed {
		return ErrPendingAmountExceeded
	}
	if pool.TotalDelegated.Cmp(amount) < 0 {
		return ErrInvalidAmount
	}
	if err := e.state.KVPut(keyPendingUndelegations, queue); err != nil {
		return err
	}
	pool.TotalDelegated = new(big.Int).Sub(pool.TotalDelegated, amount)
	if err := e.state.KVPut(keyPool, pool); err != nil {
		return err
	}
	e.emit(NewUndelegationProcessedEvent(validator, amount))
	return nil
}

// DepositFromUndelegation is the payable sink the keeper uses to return
// unbonded funds to the pool so matured claims can be paid.
func (e *Engine) DepositFromUndelegation(caller string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.base == nil {
		return errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if normalize(caller) != pool.Keeper {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.base.Transfer(pool.Keeper, moduleAddress, amount)
}

// mergePendingDelegation folds an intent into the queue. The era of the first
// insert is kept across merges.
func (e *Engine) mergePendingDelegation(validator string, amount *big.Int, era uint64) error {
	var queue []PendingDelegation
	if _, err := e.state.KVGet(keyPendingDelegations, &queue); err != nil {
		return err
	}
	for i := range queue {
		if queue[i].Validator == validator {
			queue[i].Amount = new(big.Int).Add(queue[i].Amount, amount)
			return e.state.KVPut(keyPendingDelegations, queue)
		}
	}
	queue = append(queue, PendingDelegation{Validator: validator, Amount: new(big.Int).Set(amount), Era: era})
	return e.state.KVPut(keyPendingDelegations, queue)
}

func (e *Engine) mergePendingUndelegation(validator string, amount *big.Int, era uint64) error {
	var queue []PendingUndelegation
	if _, err := e.state.KVGet(keyPendingUndelegations, &queue); err != nil {
		return err
	}
	for i := range queue {
		if queue[i].Validator == validator {
			queue[i].Amount = new(big.Int).Add(queue[i].Amount, amount)
			return e.state.KVPut(keyPendingUndelegations, queue)
		}
	}
	queue = append(queue, PendingUndelegation{Validator: validator, Amount: new(big.Int).Set(amount), Era: era})
	return e.state.KVPut(keyPendingUndelegations, queue)
}
