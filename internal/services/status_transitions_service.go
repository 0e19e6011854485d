package services

import "airdropbot/internal/models"

// SessionTransitions: допустимые переходы. Переход в то же состояние
// (повторная проверка, неверный ввод) объявлен явно.
// "idle": сессии нет; COMPLETED финальное, пока запись не удалит sweeper.
var SessionTransitions = map[models.SessionState]map[models.SessionState]bool{
	models.StateIdle: {
		models.StateAwaitingVerification: true,
	},
	models.StateAwaitingVerification: {
		models.StateAwaitingVerification: true,
		models.StateAwaitingSocialHandle: true,
		models.StateAwaitingWallet:       true,
		models.StateCancelled:            true,
	},
	models.StateAwaitingSocialHandle: {
		models.StateAwaitingSocialHandle: true,
		models.StateAwaitingWallet:       true,
		models.StateCancelled:            true,
	},
	models.StateAwaitingWallet: {
		models.StateAwaitingWallet: true,
		models.StateCompleted:      true,
		models.StateCancelled:      true,
	},
	models.StateCompleted: {},
	// после отмены /start начинает заново
	models.StateCancelled: {
		models.StateAwaitingVerification: true,
	},
}

func canTransition(current, to models.SessionState, table map[models.SessionState]map[models.SessionState]bool) bool {
	nexts, ok := table[current]
	if !ok {
		return false
	}
	return nexts[to]
}
