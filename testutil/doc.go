// Copyright 2026 InteriorLens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 InteriorLens 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，
    自动注册 Cleanup 防止泄漏
  - 异步辅助: WaitFor / WaitForChannel / AssertEventuallyTrue / AssertNoReceive，
    用于等待相册定时器与回调

# 子包

  - testutil/fixtures: 图片样例（PNG/JPEG/GIF/损坏数据）与条目构造器
  - testutil/mocks: MockReplier，记录聊天回复并支持错误注入

# 使用示例

	ctx := testutil.TestContext(t)
	items := fixtures.Album(42, "album-1", 3, 1, 2)
	reply, ok := testutil.WaitForChannel(replier.Notify(), time.Second)
*/
package testutil
