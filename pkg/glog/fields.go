package glog

import "go.uber.org/zap"

// 数据流相关的常用字段，保证各处日志 key 一致

func Actor(id int64) zap.Field { return zap.Int64("actor", id) }

func Slot(name string) zap.Field { return zap.String("slot", name) }

func Piece(id int64) zap.Field { return zap.Int64("piece", id) }

func Register(id int64) zap.Field { return zap.Int64("regst", id) }

func Peer(id int64) zap.Field { return zap.Int64("peer", id) }
